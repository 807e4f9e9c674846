package spreadsheet

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormulaAddConsumer(t *testing.T) {
	f := compile(t, "A1 @= B1")
	out1 := Location{Sheet: "Out", Area: mustRange(t, "A1")}
	out2 := Location{Sheet: "Out", Area: mustRange(t, "A2")}

	assert.True(t, f.AddConsumer(out2))
	assert.True(t, f.AddConsumer(out1))
	assert.False(t, f.AddConsumer(out2), "second add is a no-op")

	assert.Equal(t, []Location{out2, out1}, f.Outputs(), "first-seen order")
	assert.True(t, f.HasConsumer(out1))
	assert.False(t, f.HasConsumer(Location{Sheet: "Out", Area: mustRange(t, "A3")}))

	outputs := f.Outputs()
	outputs[0] = out1
	assert.Equal(t, out2, f.Outputs()[0], "Outputs returns a copy")
}

func TestFormulaAddConsumerConcurrent(t *testing.T) {
	f := compile(t, "A1 @= B1")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				f.AddConsumer(Location{Sheet: "Out", Area: CellRange(Coordinate{Column: 1, Row: i})})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, f.Outputs(), 100)
}

func TestFormulaClassificationBits(t *testing.T) {
	f := compile(t, "A1 @= RTC(RTGET(B1))")
	assert.Equal(t, Kind(0), f.Kind())

	assert.Equal(t, KindIngress, f.SetClassification(true, false))
	assert.Equal(t, KindIngress|KindEgress, f.SetClassification(false, true))
	assert.Equal(t, KindIngress|KindEgress, f.SetClassification(false, false), "bits are never cleared")

	assert.True(t, f.Ingress())
	assert.True(t, f.Egress())
	assert.False(t, f.Static())
	assert.Equal(t, "ingress|egress", f.Kind().String())
}

func TestFormulaCalls(t *testing.T) {
	f := compile(t, "A1 @= SUM(B1, SUM(C1), rtget(D1), Sum(E1))")
	assert.Equal(t, []string{"SUM", "RTGET"}, f.Calls())
	assert.Empty(t, compile(t, "A1 @= 1+2").Calls())
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		0:                        "none",
		KindStatic:               "static",
		KindEgress:               "egress",
		KindStatic | KindIngress: "static|ingress",
		KindIngress | KindEgress: "ingress|egress",
	}
	for k, want := range tests {
		assert.Equal(t, want, k.String(), fmt.Sprintf("kind %d", k))
	}
}

func TestClassifier(t *testing.T) {
	c := DefaultClassifier()
	assert.Equal(t, []string{"NOW", "RTGET", "TODAY", "TR"}, c.IngressFunctions())
	assert.Equal(t, []string{"OUTPUT", "RTC"}, c.EgressFunctions())

	tests := []struct {
		src             string
		ingress, egress bool
	}{
		{"A1 @= B1+1", false, false},
		{"A1 @= RTGET(\"feed\")", true, false},
		{"A1 @= rtc(B1)", false, true},
		{"A1 @= RTC(RTGET(B1))", true, true},
		{"A1 @= IF(TODAY()>B1, OUTPUT(B1), 0)", true, true},
		{"A1 @= SUM(NOWX(B1))", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f := compile(t, tt.src)
			ingress, egress := c.Classify(f)
			assert.Equal(t, tt.ingress, ingress)
			assert.Equal(t, tt.egress, egress)
			assert.Equal(t, Kind(0), f.Kind(), "Classify does not modify the formula")
		})
	}
}

func TestNewClassifier(t *testing.T) {
	c, err := NewClassifier([]string{" feed ", "feed"}, []string{"publish"})
	require.NoError(t, err)
	assert.Equal(t, []string{"FEED"}, c.IngressFunctions())

	ingress, egress := c.Classify(compile(t, "A1 @= PUBLISH(Feed(1))"))
	assert.True(t, ingress)
	assert.True(t, egress)

	_, err = NewClassifier(nil, []string{"RTC"})
	assert.ErrorIs(t, err, ErrEmptyFunctionSet)
	_, err = NewClassifier([]string{"RTGET"}, []string{" "})
	assert.ErrorIs(t, err, ErrEmptyFunctionSet)
}
