package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateResponseAcceptsWellFormedSnippets(t *testing.T) {
	resp := Response{Results: []Result{
		{PostID: "p1", Snippet: "a fine snippet"},
		{PostID: "p2", Snippet: strings.Repeat("a", SnippetLimit)},
	}}
	assert.NoError(t, ValidateResponse(resp))
}

func TestValidateResponseRejectsOverLongSnippet(t *testing.T) {
	resp := Response{Results: []Result{
		{PostID: "p1", Snippet: strings.Repeat("a", SnippetLimit+1)},
	}}
	err := ValidateResponse(resp)
	assert.Error(t, err)
}

func TestValidateResponseRejectsNulByte(t *testing.T) {
	resp := Response{Results: []Result{
		{PostID: "p1", Snippet: "hello\x00world"},
	}}
	assert.Error(t, ValidateResponse(resp))
}

func TestValidateResponseRejectsEscByte(t *testing.T) {
	resp := Response{Results: []Result{
		{PostID: "p1", Snippet: "hello\x1bworld"},
	}}
	assert.Error(t, ValidateResponse(resp))
}
