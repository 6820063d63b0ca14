package classify_test

import (
	"testing"

	"github.com/fyrsmithlabs/failbank/internal/classify"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCategory classify.Category
		wantSeverity classify.Severity
	}{
		{
			name:         "assertion error",
			text:         "AssertionError: expected 5 got 3",
			wantCategory: classify.CategoryTestFailure,
			wantSeverity: classify.SeverityHigh,
		},
		{
			name:         "surefire plugin",
			text:         "[ERROR] Surefire reported 2 failing cases",
			wantCategory: classify.CategoryTestFailure,
			wantSeverity: classify.SeverityHigh,
		},
		{
			name:         "npm dependency resolution",
			text:         "npm ERR! Could not resolve peer dep",
			wantCategory: classify.CategoryDependency,
			wantSeverity: classify.SeverityHigh,
		},
		{
			name:         "missing build script",
			text:         "sh: 1: webpack: command not found",
			wantCategory: classify.CategoryBuildScript,
			wantSeverity: classify.SeverityMedium,
		},
		{
			name:         "docker daemon",
			text:         "docker: Error response from daemon: no such image",
			wantCategory: classify.CategoryDocker,
			wantSeverity: classify.SeverityMedium,
		},
		{
			name:         "denied credentials",
			text:         "fatal: unable to clone: access denied",
			wantCategory: classify.CategoryCredential,
			wantSeverity: classify.SeverityMedium,
		},
		{
			name:         "case insensitive match",
			text:         "DOCKERFILE parse error on line 3",
			wantCategory: classify.CategoryDocker,
			wantSeverity: classify.SeverityMedium,
		},
		{
			name:         "no keyword hits",
			text:         "exit status 1",
			wantCategory: classify.CategoryUnknown,
			wantSeverity: classify.SeverityMedium,
		},
		{
			name:         "empty input",
			text:         "",
			wantCategory: classify.CategoryUnknown,
			wantSeverity: classify.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, sev := classify.Classify(tt.text)
			assert.Equal(t, tt.wantCategory, cat)
			assert.Equal(t, tt.wantSeverity, sev)
		})
	}
}

// A log matching several categories resolves to the one earliest in the
// priority order, regardless of keyword position in the text.
func TestClassify_PriorityOrder(t *testing.T) {
	cat, sev := classify.Classify("docker build ran the test suite and it failed")
	assert.Equal(t, classify.CategoryTestFailure, cat)
	assert.Equal(t, classify.SeverityHigh, sev)

	cat, _ = classify.Classify("permission denied while pulling docker image")
	assert.Equal(t, classify.CategoryDocker, cat)
}

func TestSuggestedFix(t *testing.T) {
	assert.Contains(t, classify.SuggestedFix(classify.CategoryTestFailure), "mvn test")
	assert.Contains(t, classify.SuggestedFix(classify.CategoryDocker), "docker build")
	assert.Equal(t, "Investigate further manually.", classify.SuggestedFix(classify.CategoryUnknown))
}
