package camp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriJSON(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		Available Tri `json:"available"`
	}
	data, err := json.Marshal(wrapper{Available: TriUnknown})
	require.NoError(t, err)
	assert.JSONEq(t, `{"available":"unknown"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"available":false}`), &w))
	assert.Equal(t, TriFalse, w.Available)
	require.NoError(t, json.Unmarshal([]byte(`{"available":"true"}`), &w))
	assert.Equal(t, TriTrue, w.Available)
	require.Error(t, json.Unmarshal([]byte(`{"available":"maybe"}`), &w))
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("rendered")
	require.NoError(t, err)
	assert.Equal(t, StrategyRendered, s)

	_, err = ParseStrategy("telepathy")
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	t.Run("deadline becomes timeout", func(t *testing.T) {
		t.Parallel()
		err := Classify(fmt.Errorf("navigate: %w", context.DeadlineExceeded))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.True(t, IsRetryable(err))
	})

	t.Run("existing kind is preserved", func(t *testing.T) {
		t.Parallel()
		in := fmt.Errorf("llm output: %w", ErrParse)
		out := Classify(in)
		assert.Same(t, in, out)
		assert.False(t, IsRetryable(out))
	})

	t.Run("unknown errors are network", func(t *testing.T) {
		t.Parallel()
		err := Classify(errors.New("Not Found"))
		assert.ErrorIs(t, err, ErrNetwork)
		assert.Contains(t, err.Error(), "Not Found")
	})

	assert.NoError(t, Classify(nil))
}

func TestHasFieldAndIsEmpty(t *testing.T) {
	t.Parallel()

	var f CanonicalFacts
	assert.True(t, f.IsEmpty())
	assert.False(t, f.HasField("pricing"))

	f.Pricing = Pricing{TierWeekly: 350}
	f.Contact.Email = "camp@example.com"
	assert.False(t, f.IsEmpty())
	assert.True(t, f.HasField("pricing"))
	assert.True(t, f.HasField("pricing.weekly"))
	assert.False(t, f.HasField("pricing.daily"))
	assert.True(t, f.HasField("contact.email"))
	assert.False(t, f.HasField("contact.phone"))
	assert.False(t, f.HasField("extendedCare"))
	assert.False(t, f.HasField("bogus"))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	w := true
	f := CanonicalFacts{
		Pricing:      Pricing{TierWeekly: 300},
		Sessions:     []Session{{Name: "Week 1", Dates: "June 16–20", Kind: KindSession}},
		Activities:   []string{"Soccer"},
		Registration: Registration{Waitlist: &w},
		Sources:      map[string]Strategy{"pricing.weekly": StrategyStatic},
	}
	c := f.Clone()
	c.Pricing[TierWeekly] = 999
	c.Sessions[0].Name = "changed"
	*c.Registration.Waitlist = false
	c.Sources["pricing.weekly"] = StrategyLLM

	assert.Equal(t, 300, f.Pricing[TierWeekly])
	assert.Equal(t, "Week 1", f.Sessions[0].Name)
	assert.True(t, *f.Registration.Waitlist)
	assert.Equal(t, StrategyStatic, f.Sources["pricing.weekly"])
}

func TestSortActivities(t *testing.T) {
	t.Parallel()

	f := CanonicalFacts{Activities: []string{"Swimming", "Art", "Swimming", "Coding"}}
	f.SortActivities()
	assert.Equal(t, []string{"Art", "Coding", "Swimming"}, f.Activities)
}

func TestFailedURL(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("rendered: %w", &FetchError{URL: "https://zoo.example/faq", Err: ErrTimeout})
	assert.Equal(t, "https://zoo.example/faq", FailedURL(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "https://zoo.example/faq")
	assert.Empty(t, FailedURL(errors.New("boom")))
	assert.Empty(t, FailedURL(nil))
}
