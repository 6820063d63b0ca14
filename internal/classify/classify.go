// Package classify provides rule-based categorization of CI/CD failure logs.
//
// Classification is a pure keyword scan: the fixed category list is walked
// in priority order and the first category with any case-insensitive
// substring match wins. There are no side effects and no failure modes;
// any string input (including empty) classifies, falling back to Unknown.
package classify

import "strings"

// Category is a coarse failure category assigned to a log.
type Category string

// Fixed category set. CategoryUnknown is the fallback for unmatched input.
const (
	CategoryTestFailure Category = "Test Failure"
	CategoryDependency  Category = "Dependency Issue"
	CategoryBuildScript Category = "Build Script Error"
	CategoryDocker      Category = "Docker Failure"
	CategoryCredential  Category = "Credential/Permissions"
	CategoryUnknown     Category = "Unknown"
)

// Severity indicates how urgent a failure category is considered.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// rule pairs a category with its trigger keywords. The slice order is the
// match priority: earlier rules win when a log matches several categories.
type rule struct {
	category Category
	keywords []string
}

var rules = []rule{
	{CategoryTestFailure, []string{"test", "assert", "failure", "surefire"}},
	{CategoryDependency, []string{"dependency", "resolve", "artifact", "package", "npm", "requirements.txt"}},
	{CategoryBuildScript, []string{"missing script", "no such file", "command not found"}},
	{CategoryDocker, []string{"docker", "image", "container", "dockerfile"}},
	{CategoryCredential, []string{"permission", "credential", "unauthorized", "access denied"}},
}

var fixes = map[Category]string{
	CategoryTestFailure: "Run tests locally: `mvn test` or `npm test` and fix failing assertions.",
	CategoryDependency:  "Check version numbers, run `npm install` or `mvn -U clean install`.",
	CategoryBuildScript: "Add or correct build script in package.json.",
	CategoryDocker:      "Fix Dockerfile or verify packages exist. Test using `docker build .`",
	CategoryCredential:  "Ensure Jenkins secrets / AWS IAM permissions are configured.",
}

const unknownFix = "Investigate further manually."

// Classify maps raw log text to a category and severity.
//
// The full text is scanned; callers must not pre-truncate it (the narrative
// provider truncates its own input independently).
func Classify(text string) (Category, Severity) {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.category, severityFor(r.category)
			}
		}
	}
	return CategoryUnknown, SeverityMedium
}

// severityFor derives severity from the category. Test and dependency
// failures block merges outright, so they rank High; everything else,
// including Unknown, is Medium.
func severityFor(c Category) Severity {
	switch c {
	case CategoryTestFailure, CategoryDependency:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// SuggestedFix returns the canned remediation string for a category.
func SuggestedFix(c Category) string {
	if fix, ok := fixes[c]; ok {
		return fix
	}
	return unknownFix
}
