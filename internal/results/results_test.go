package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSet_AppendRejectsDuplicateTask(t *testing.T) {
	set := NewRunSet("cpachecker", "SV-COMP26_ReachSafety-Arrays")
	require.NoError(t, set.Append(&Record{Task: "a.yml", Status: "true", Category: CategoryCorrect}))

	err := set.Append(&Record{Task: "a.yml", Status: "false", Category: CategoryWrong})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate task")
	assert.Equal(t, 1, set.Len())
}

func TestRunSet_Find(t *testing.T) {
	set := NewRunSet("uautomizer", "SV-COMP26_ReachSafety-Loops")
	require.NoError(t, set.Append(&Record{Task: "loop1.yml", Status: "true", Category: CategoryCorrect}))

	rec, ok := set.Find("loop1.yml")
	require.True(t, ok)
	assert.Equal(t, "true", rec.Status)

	_, ok = set.Find("absent.yml")
	assert.False(t, ok)
}

func TestIsStatusFalse(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{"false", true},
		{"false(unreach-call)", true},
		{"false(valid-deref)", true},
		{"true", false},
		{"ERROR", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsStatusFalse(tc.status); got != tc.want {
			t.Errorf("IsStatusFalse(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestMainStatus(t *testing.T) {
	assert.Equal(t, "false", MainStatus("false(unreach-call)"))
	assert.Equal(t, "true ", MainStatus("true (trivial)"))
	assert.Equal(t, "true", MainStatus("true"))
	assert.Equal(t, "", MainStatus(""))
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryCorrect.Valid())
	assert.True(t, CategoryMissing.Valid())
	assert.False(t, Category("bogus").Valid())
}

func TestCategoryIsAnyCorrect(t *testing.T) {
	assert.True(t, CategoryCorrect.IsAnyCorrect())
	assert.True(t, CategoryCorrectUnconfirmed.IsAnyCorrect())
	assert.False(t, CategoryWrong.IsAnyCorrect())
	assert.False(t, CategoryError.IsAnyCorrect())
}

func TestOptional(t *testing.T) {
	var none Optional[float64]
	_, ok := none.Get()
	assert.False(t, ok)
	assert.Equal(t, 1.5, none.Or(1.5))

	some := Some(2.0)
	v, ok := some.Get()
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, 2.0, some.Or(9))
	assert.True(t, some.Present())
}
