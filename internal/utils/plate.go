package utils

import "strings"

var plateReplacer = strings.NewReplacer(" ", "", "-", "")

// NormalizePlate uppercases a plate read and drops spaces and hyphens.
func NormalizePlate(plate string) string {
	return strings.ToUpper(plateReplacer.Replace(strings.TrimSpace(plate)))
}
