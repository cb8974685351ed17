package tui

import (
	"reflect"
	"testing"

	"github.com/JohnDeved/rombrowse/internal/dispatch"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want command
	}{
		{"", command{kind: cmdNone}},
		{"4", command{kind: cmdOpen, numbers: []int{4}}},
		{"2:5 q", command{kind: cmdSelect, numbers: []int{2, 3, 4, 5}, action: dispatch.EnqueueTail}},
		{"3 d", command{kind: cmdSelect, numbers: []int{3}, action: dispatch.DownloadNow}},
		{"1, 3 h", command{kind: cmdSelect, numbers: []int{1, 3}, action: dispatch.EnqueueHead}},
		{"4 p", command{kind: cmdSelect, numbers: []int{4}, action: dispatch.PrintURL}},
		{"p 4", command{kind: cmdPage, n: 4}},
		{"n", command{kind: cmdNextPage}},
		{"..", command{kind: cmdUp}},
		{"size 100", command{kind: cmdPageSize, n: 100}},
		{"toggle DLC", command{kind: cmdToggle, arg: "DLC"}},
		{"x Beta", command{kind: cmdExclude, arg: "Beta"}},
		{"ux (Beta)", command{kind: cmdUnexclude, arg: "(Beta)"}},
		{"/final fantasy", command{kind: cmdSearch, arg: "final fantasy"}},
		{"/", command{kind: cmdClearSearch}},
		{"ds No-Intro", command{kind: cmdDataset, arg: "No-Intro"}},
		{"recent", command{kind: cmdRecent}},
		{"recent 2", command{kind: cmdRecent, n: 2}},
		{"go Sony - PlayStation/Extras", command{kind: cmdGoto, arg: "Sony - PlayStation/Extras"}},
		{"run", command{kind: cmdRun}},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.in)
		if err != nil {
			t.Fatalf("parseCommand(%q) error: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseCommand(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, in := range []string{"2:5", "5:2 q", "3 z", "3 d extra", "p x", "size", "toggle", "recent x", "frobnicate"} {
		if _, err := parseCommand(in); err == nil {
			t.Errorf("parseCommand(%q) should fail", in)
		}
	}
}
