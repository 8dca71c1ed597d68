package model

import "strconv"

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// ParseUserID parses an identity id produced by User.Identity.
func ParseUserID(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }
