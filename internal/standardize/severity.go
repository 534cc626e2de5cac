package standardize

// Severity lookups per tool. A category missing from its table is skipped.

var axeViolationSeverity = map[string]int{
	"minor":    0,
	"moderate": 1,
	"serious":  2,
	"critical": 3,
}

var axeIncompleteSeverity = map[string]int{
	"minor":    0,
	"moderate": 0,
	"serious":  1,
	"critical": 1,
}

var alfaSeverity = map[string]int{
	"cantTell": 1,
	"failed":   3,
}

var aslintSeverity = map[string]int{
	"manual":  0,
	"warning": 1,
	"error":   3,
}

var ed11ySeverity = map[string]int{
	"warning": 1,
	"error":   3,
}

var htmlcsSeverity = map[string]int{
	"notice":  0,
	"warning": 1,
	"error":   3,
}

var ibmSeverity = map[string]int{
	"manual":                  0,
	"potentialrecommendation": 0,
	"recommendation":          1,
	"potentialviolation":      2,
	"violation":               3,
}

// nuValSeverity is keyed by type, or type/subType when a subtype is present.
var nuValSeverity = map[string]int{
	"info":         0,
	"info/warning": 1,
	"error":        3,
	"error/fatal":  3,
}

var qualWebSeverity = map[string]map[string]int{
	"act-rules": {
		"warning": 1,
		"failed":  3,
	},
	"wcag-techniques": {
		"warning": 0,
		"failed":  2,
	},
	"best-practices": {
		"warning": 0,
		"failed":  1,
	},
}

var waveSeverity = map[string]int{
	"alert":    0,
	"contrast": 2,
	"error":    3,
}

var waxSeverity = map[string]int{
	"warning": 1,
	"error":   3,
}
