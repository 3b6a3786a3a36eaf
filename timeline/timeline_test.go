package timeline

import (
	"testing"
	"time"
)

func ms(v int64) time.Time { return time.UnixMilli(v).UTC() }

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-01T00:00:00Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-01-01T00:00:00.250Z", time.Date(2024, 1, 1, 0, 0, 0, 250e6, time.UTC), true},
		{"2024-03-05T12:30:00+02:00", time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), true},
		{"2024-03-05T12:30:00", time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC), true},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseStepsSkipsInvalid(t *testing.T) {
	steps := ParseSteps([]string{"2024-01-01T00:00:00Z", "garbage", "2024-02-01T00:00:00Z"})
	if len(steps) != 2 {
		t.Fatalf("len = %d, want 2", len(steps))
	}
	if steps[1].Month() != time.February {
		t.Errorf("order not preserved: %v", steps)
	}
}

func TestAscending(t *testing.T) {
	tests := []struct {
		name  string
		steps []string
		want  bool
	}{
		{"empty", nil, true},
		{"single", []string{"2024-01-01"}, true},
		{"increasing", []string{"2024-01-01", "2024-01-01T00:00:01Z", "2024-02-01"}, true},
		{"equal", []string{"2024-01-01", "2024-01-01T00:00:00Z"}, false},
		{"decreasing", []string{"2024-02-01", "2024-01-01"}, false},
		{"unparseable", []string{"2024-01-01", "later"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ascending(tt.steps); got != tt.want {
				t.Errorf("Ascending(%q) = %v, want %v", tt.steps, got, tt.want)
			}
		})
	}
}

func TestNearest(t *testing.T) {
	tests := []struct {
		name  string
		steps []time.Time
		q     time.Time
		want  time.Time
	}{
		{"empty passes through", nil, ms(5000), ms(5000)},
		{"single", []time.Time{ms(1000)}, ms(5000), ms(1000)},
		{"tie keeps earlier", []time.Time{ms(1000), ms(9000)}, ms(5000), ms(1000)},
		{"closer later", []time.Time{ms(1000), ms(9000)}, ms(5001), ms(9000)},
		{"exact member", []time.Time{ms(1000), ms(2000), ms(3000)}, ms(2000), ms(2000)},
		{"before first", []time.Time{ms(1000), ms(2000)}, ms(-50), ms(1000)},
		{"after last", []time.Time{ms(1000), ms(2000)}, ms(99999), ms(2000)},
		{"tie in declared order", []time.Time{ms(9000), ms(1000)}, ms(5000), ms(9000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Nearest(tt.steps, tt.q); !got.Equal(tt.want) {
				t.Errorf("Nearest() = %d, want %d", got.UnixMilli(), tt.want.UnixMilli())
			}
		})
	}
}

// TestNearestIsMinimal checks that the result is a member and that no member
// is strictly closer, over a spread of queries.
func TestNearestIsMinimal(t *testing.T) {
	steps := []time.Time{ms(100), ms(250), ms(400), ms(1000), ms(1600)}
	for q := int64(-200); q <= 2000; q += 25 {
		got := Nearest(steps, ms(q))
		if !Contains(steps, got) {
			t.Fatalf("Nearest(%d) = %d is not a step", q, got.UnixMilli())
		}
		gotDist := absDuration(got.Sub(ms(q)))
		for i, s := range steps {
			d := absDuration(s.Sub(ms(q)))
			if d < gotDist {
				t.Fatalf("Nearest(%d) = %d but step %d is closer", q, got.UnixMilli(), s.UnixMilli())
			}
			if d == gotDist && s.Before(got) {
				t.Fatalf("Nearest(%d) = %d but earlier step #%d ties", q, got.UnixMilli(), i)
			}
		}
	}
}

func TestContainsIsExact(t *testing.T) {
	steps := []time.Time{ms(1000), ms(2000)}
	if !Contains(steps, ms(2000)) {
		t.Error("Contains(2000) = false")
	}
	if Contains(steps, ms(2001)) {
		t.Error("Contains(2001) = true, want exact match only")
	}
	if Contains(nil, ms(0)) {
		t.Error("Contains(nil) = true")
	}
}

func TestReconcile(t *testing.T) {
	steps := []time.Time{ms(1000), ms(2000)}
	def := "1970-01-01T00:00:02Z"

	got, changed := Reconcile(ms(1000), steps, def)
	if changed || !got.Equal(ms(1000)) {
		t.Errorf("member time should be kept, got %d changed=%v", got.UnixMilli(), changed)
	}

	got, changed = Reconcile(ms(1500), steps, def)
	if !changed || !got.Equal(ms(2000)) {
		t.Errorf("non-member should reset to default, got %d changed=%v", got.UnixMilli(), changed)
	}

	got, changed = Reconcile(ms(1500), steps, "not a date")
	if changed || !got.Equal(ms(1500)) {
		t.Errorf("bad default should keep current, got %d changed=%v", got.UnixMilli(), changed)
	}
}

func TestBounds(t *testing.T) {
	now := ms(42)
	lo, hi := Bounds(nil, now)
	if !lo.Equal(now) || !hi.Equal(now) {
		t.Errorf("Bounds(nil) = %v, %v", lo, hi)
	}
	lo, hi = Bounds([]time.Time{ms(1), ms(5), ms(9)}, now)
	if lo.UnixMilli() != 1 || hi.UnixMilli() != 9 {
		t.Errorf("Bounds = %d, %d", lo.UnixMilli(), hi.UnixMilli())
	}
	if !SliderDisabled([]time.Time{ms(1)}) || SliderDisabled([]time.Time{ms(1), ms(2)}) {
		t.Error("SliderDisabled wrong")
	}
}

func TestFormat(t *testing.T) {
	in := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.FixedZone("X", 3600))
	if got, want := Format(in), "2024-01-02T02:04:05.006Z"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
	back, ok := Parse(Format(in))
	if !ok || !back.Equal(in) {
		t.Errorf("Parse(Format()) = %v, %v", back, ok)
	}
}
