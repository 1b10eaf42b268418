package proxy

import "strconv"

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
func formatInt(i int) string       { return strconv.Itoa(i) }
func formatBool(b bool) string     { return strconv.FormatBool(b) }
