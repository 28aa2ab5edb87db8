package jobcounter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncDec(t *testing.T) {
	c := New()
	c.Inc()
	c.Inc()
	assert.Equal(t, 2, c.Snapshot(10))
	c.Dec()
	assert.Equal(t, 1, c.Snapshot(10))
}

func TestSnapshot_ClampsToPopulation(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Inc()
	}
	assert.Equal(t, 3, c.Snapshot(3))
}

func TestSnapshot_ClampsToZero(t *testing.T) {
	c := New()
	c.Dec()
	assert.Equal(t, 0, c.Snapshot(10))
}
