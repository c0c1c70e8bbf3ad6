package stage

import "fmt"

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

func errRange(field string, lo, hi int) error {
	return fmt.Errorf("%s must be in [%d,%d]", field, lo, hi)
}
