package convert

type multiSink []ProgressSink

func (m multiSink) OnProgress(p Progress) {
	for _, s := range m {
		s.OnProgress(p)
	}
}

// MultiSink fans progress reports out to every non-nil sink.
func MultiSink(sinks ...ProgressSink) ProgressSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
