package repovul

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestVulnerabilityJSONOrder(t *testing.T) {
	summary := "stack overflow in the frobnicator"
	v := Vulnerability{
		ID:        "CVE-2021-0001",
		Published: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		Modified:  time.Date(2021, 9, 2, 0, 0, 0, 0, time.UTC),
		Details:   "details",
		Summary:   &summary,
		Severity:  []Severity{{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N"}},
		RepoURL:   "https://github.com/example/frob",
		CWEs:      []string{"CWE-787", "CWE-121"},
		Commits:   []string{"beef", "abcd"},
	}
	got, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"CVE-2021-0001","published":"2021-09-01T00:00:00Z","modified":"2021-09-02T00:00:00Z","details":"details","summary":"stack overflow in the frobnicator","severity":[{"type":"CVSS_V3","score":"CVSS:3.1/AV:N"}],"repo_url":"https://github.com/example/frob","cwes":["CWE-121","CWE-787"],"commits":["abcd","beef"]}`
	if string(got) != want {
		t.Errorf("got:  %s\nwant: %s", got, want)
	}
}

func TestVulnerabilityJSONOmitsOptional(t *testing.T) {
	v := Vulnerability{
		ID:        "CVE-2021-0002",
		Published: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		Modified:  time.Date(2021, 9, 2, 0, 0, 0, 0, time.UTC),
		Details:   "details",
		RepoURL:   "https://github.com/example/frob",
	}
	got, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"CVE-2021-0002","published":"2021-09-01T00:00:00Z","modified":"2021-09-02T00:00:00Z","details":"details","repo_url":"https://github.com/example/frob","cwes":[],"commits":[]}`
	if string(got) != want {
		t.Errorf("got:  %s\nwant: %s", got, want)
	}
}

func TestVulnerabilityRoundTrip(t *testing.T) {
	summary := "s"
	in := Vulnerability{
		ID:        "GHSA-xxxx-yyyy-zzzz",
		Published: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		Modified:  time.Date(2020, 6, 7, 8, 9, 10, 0, time.UTC),
		Details:   "d",
		Summary:   &summary,
		Severity:  []Severity{{Type: "CVSS_V3", Score: "x"}},
		RepoURL:   "https://github.com/example/frob",
		CWEs:      []string{"CWE-79"},
		Commits:   []string{"0123456789abcdef0123456789abcdef01234567"},
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Vulnerability
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(in, out) {
		t.Error(cmp.Diff(in, out))
	}
}

func TestRevisionJSONOrder(t *testing.T) {
	r := Revision{
		Commit:    "0123456789abcdef0123456789abcdef01234567",
		RepoURL:   "https://github.com/example/frob",
		Date:      time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
		Languages: map[string]int64{"Go": 1000, "C": 500},
		Size:      1500,
	}
	got, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"commit":"0123456789abcdef0123456789abcdef01234567","repo_url":"https://github.com/example/frob","date":"2021-09-01T00:00:00Z","languages":{"C":500,"Go":1000},"size":1500}`
	if string(got) != want {
		t.Errorf("got:  %s\nwant: %s", got, want)
	}
	var out Revision
	if err := json.Unmarshal(got, &out); err != nil {
		t.Fatal(err)
	}
	if !cmp.Equal(r, out) {
		t.Error(cmp.Diff(r, out))
	}
}
