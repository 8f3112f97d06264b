package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/trezcool/maendeleo/core"
)

func TestFields(t *testing.T) {
	err := errors.New("boom")
	kvs := fields([]interface{}{err, map[string]interface{}{"course": "c1"}, core.Person{ID: "u1"}, "u1/c1/a", 2})

	assert.Equal(t, []interface{}{
		zap.Error(err),
		"course", "c1",
		"person", "u1",
		"args", "u1/c1/a 2",
	}, kvs)
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	args := l.prepare("msg", []interface{}{core.Person{ID: "u1"}, "x", core.Person{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", "x"}, args)
}
