package store

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	err := &NotFoundError{Entity: "station", Key: "7"}
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "station not found")

	assert.False(t, IsNotFound(eris.New("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestIsConstraint(t *testing.T) {
	err := &ConstraintError{Op: "insert reading", Constraint: "foreign key", Err: eris.New("fk")}
	assert.True(t, IsConstraint(err))
	assert.Contains(t, err.Error(), "constraint violated")

	assert.False(t, IsConstraint(eris.New("boom")))
	assert.False(t, IsConstraint(nil))
}
