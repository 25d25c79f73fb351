package tracker

import "strings"

// APIVersion prefixes every functional route.
const APIVersion = "v1"

// ProductionNodes are the public tracker endpoints, in preference order.
var ProductionNodes = []string{
	"https://0.tracker.saveweb.org/",
	"https://1.tracker.saveweb.org/",
	"https://2.tracker.saveweb.org/",
	"http://3.tracker.saveweb.org/",
}

// TestNodes point at a tracker running locally.
var TestNodes = []string{
	"http://localhost:8080/",
}

// NormalizeBaseURL makes sure base ends with a single slash.
func NormalizeBaseURL(base string) string {
	return strings.TrimRight(base, "/") + "/"
}
