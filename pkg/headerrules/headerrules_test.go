package headerrules

import "testing"

func fieldsEqual(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestParseRejectsUnknownCommand(t *testing.T) {
	_, err := Parse([]byte(`
- cmd: bogus
  name: x-foo
  value: bar
`))
	if err == nil {
		t.Fatal("expected an error for an unknown cmd")
	}
}

func TestParseRejectsMissingValue(t *testing.T) {
	_, err := Parse([]byte(`
- cmd: add
  name: x-foo
`))
	if err == nil {
		t.Fatal("expected an error for a missing value on add")
	}
}

func TestParseLowercasesName(t *testing.T) {
	rules, err := Parse([]byte(`
- cmd: add
  name: X-Foo
  value: bar
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if rules[0].Name != "x-foo" {
		t.Errorf("Name = %q, want x-foo", rules[0].Name)
	}
}

func TestApplyAdd(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: add
  name: x-frame-options
  value: DENY
`))
	got := rules.Apply(nil)
	want := []Field{{Name: "x-frame-options", Value: "DENY"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyAppendCreatesWhenAbsent(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: append
  name: vary
  value: accept-encoding
`))
	got := rules.Apply(nil)
	want := []Field{{Name: "vary", Value: "accept-encoding"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyAppendJoinsWhenPresent(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: append
  name: vary
  value: accept-encoding
`))
	got := rules.Apply([]Field{{Name: "vary", Value: "cookie"}})
	want := []Field{{Name: "vary", Value: "cookie, accept-encoding"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyMergeSkipsDuplicate(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: merge
  name: vary
  value: cookie
`))
	got := rules.Apply([]Field{{Name: "vary", Value: "cookie, accept-encoding"}})
	want := []Field{{Name: "vary", Value: "cookie, accept-encoding"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplySetReplacesExisting(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: set
  name: server
  value: h2sched
`))
	got := rules.Apply([]Field{
		{Name: "server", Value: "old-value"},
		{Name: "server", Value: "another-old-value"},
		{Name: "content-type", Value: "text/plain"},
	})
	want := []Field{
		{Name: "content-type", Value: "text/plain"},
		{Name: "server", Value: "h2sched"},
	}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplySetIfEmptyLeavesExisting(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: setifempty
  name: server
  value: h2sched
`))
	got := rules.Apply([]Field{{Name: "server", Value: "already-set"}})
	want := []Field{{Name: "server", Value: "already-set"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyUnset(t *testing.T) {
	rules, _ := Parse([]byte(`
- cmd: unset
  name: server
`))
	got := rules.Apply([]Field{
		{Name: "server", Value: "h2sched"},
		{Name: "content-type", Value: "text/plain"},
	})
	want := []Field{{Name: "content-type", Value: "text/plain"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestApplyOrderMatters(t *testing.T) {
	rules, err := Parse([]byte(`
- cmd: add
  name: x-a
  value: one
- cmd: set
  name: x-a
  value: two
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	got := rules.Apply(nil)
	want := []Field{{Name: "x-a", Value: "two"}}
	if !fieldsEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
