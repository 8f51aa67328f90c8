package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/taskboard/internal/utils"
)

func TestPointers(t *testing.T) {
	p := utils.Ptr(3)
	require.Equal(t, 3, utils.Value(p))
	require.Equal(t, 0, utils.Value[int](nil))
	require.Equal(t, "x", utils.ValueOr(nil, "x"))
	require.Equal(t, "y", utils.ValueOr(utils.Ptr("y"), "x"))
}
