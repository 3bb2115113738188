package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Release is the subset of the GitHub latest-release payload we care about.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker asks GitHub whether a newer release exists. Failures are soft; the
// caller logs and moves on.
type Checker struct {
	repo       string
	httpClient *http.Client
}

func NewChecker(repo string) *Checker {
	return &Checker{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Check returns the latest release and whether it is newer than current.
func (c *Checker) Check(ctx context.Context, current string) (Release, bool, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Release{}, false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Release{}, false, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, false, fmt.Errorf("fetch latest release: status %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return Release{}, false, fmt.Errorf("decode release: %w", err)
	}
	return rel, IsNewer(rel.TagName, current), nil
}

// IsNewer compares two version strings like "v1.4.2" numerically, segment by
// segment. Unparseable versions never count as newer.
func IsNewer(candidate, current string) bool {
	cand, ok := parseVersion(candidate)
	if !ok {
		return false
	}
	cur, ok := parseVersion(current)
	if !ok {
		return false
	}
	for i := 0; i < len(cand) || i < len(cur); i++ {
		a, b := 0, 0
		if i < len(cand) {
			a = cand[i]
		}
		if i < len(cur) {
			b = cur[i]
		}
		if a != b {
			return a > b
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	// Ignore prerelease/build suffixes: "1.2.3-rc1" compares as 1.2.3.
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ".")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		nums = append(nums, n)
	}
	return nums, true
}
