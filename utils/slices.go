package utils

import "slices"

func AnyOf[T comparable](e T, values ...T) bool {
	return slices.Contains(values, e)
}
