package trivionerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := New(KindNameTaken, "name already in use")

	assert.True(t, Is(err, KindNameTaken))
	assert.False(t, Is(err, KindBadPassword))
	assert.False(t, Is(errors.New("plain"), KindNameTaken))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(KindPhaseViolation, "wrong phase"))
	assert.True(t, ok)
	assert.Equal(t, KindPhaseViolation, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
