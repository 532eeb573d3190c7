package sortutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeysCopies(t *testing.T) {
	in := []string{"b", "a", "c"}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(in))
	assert.Equal(t, []string{"b", "a", "c"}, in)
}

func TestDifferenceAndIntersection(t *testing.T) {
	a := map[string]int{"3": 0, "1": 0, "2": 0}
	b := map[string]bool{"2": true, "4": true}

	assert.Equal(t, []string{"1", "3"}, Difference(a, b))
	assert.Equal(t, []string{"4"}, Difference(b, a))
	assert.Equal(t, []string{"2"}, Intersection(a, b))
	assert.Equal(t, []string{}, Intersection(map[string]int{}, b))
}
