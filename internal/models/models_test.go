package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCitation(t *testing.T) {
	single := &DocumentChunk{PageStart: 5, PageEnd: 5}
	assert.Equal(t, "Page 5", single.PageCitation())

	span := &DocumentChunk{PageStart: 5, PageEnd: 7}
	assert.Equal(t, "Pages 5-7", span.PageCitation())

	first := &DocumentChunk{PageStart: 1, PageEnd: 1}
	assert.Equal(t, "Page 1", first.PageCitation())
}
