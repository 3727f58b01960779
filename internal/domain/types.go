package domain

import (
	"regexp"
	"strings"
)

// Kind classifies a content node. It is derived from the remote listing, never stored there.
type Kind string

const (
	KindFolder  Kind = "folder"
	KindProject Kind = "project"
	KindPage    Kind = "page"
)

// MediaItem is an image or video owned by exactly one project
type MediaItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
	HostedURL    string `json:"-"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

// IsVideo reports whether the item should be hosted as a video resource
func (m MediaItem) IsVideo() bool {
	return strings.HasPrefix(m.MimeType, "video/")
}

// IsMedia reports whether a remote MIME type is one the pipeline mirrors
func IsMedia(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || strings.HasPrefix(mimeType, "video/")
}

// LayoutCode names one of the presentation layout patterns
type LayoutCode string

const (
	LayoutFullBleed LayoutCode = "A"
	LayoutPair      LayoutCode = "B"
	LayoutCluster   LayoutCode = "C"
	LayoutSingle    LayoutCode = "D"
)

// Valid reports whether c is a known layout code
func (c LayoutCode) Valid() bool {
	switch c {
	case LayoutFullBleed, LayoutPair, LayoutCluster, LayoutSingle:
		return true
	}
	return false
}

// LayoutGroup assigns a set of media ids to one layout pattern
type LayoutGroup struct {
	Layout   LayoutCode `json:"layout"`
	MediaIDs []string   `json:"mediaIds"`
}

// BlockType is the kind of a narrative detail block
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockLink      BlockType = "link"
	BlockCredits   BlockType = "credits"
)

// Credit is one "role: name" line of a project's credits
type Credit struct {
	Role string `json:"role"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Block is one element of a narrative's detail level
type Block struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content,omitempty"`
	URL     string    `json:"url,omitempty"`
	Text    string    `json:"text,omitempty"`
	Items   []Credit  `json:"items,omitempty"`
}

// Narrative is the structured decomposition of a project's text
type Narrative struct {
	ID     string  `json:"id"`
	L1     string  `json:"l1"`
	L2     string  `json:"l2"`
	L3     []Block `json:"l3"`
	Year   string  `json:"year"`
	Medium string  `json:"medium"`
	Role   string  `json:"role"`
}

// SegmentType is the kind of a parsed rich-text segment
type SegmentType string

const (
	SegmentText         SegmentType = "text"
	SegmentProjectLink  SegmentType = "projectLink"
	SegmentPageLink     SegmentType = "pageLink"
	SegmentExternalLink SegmentType = "externalLink"
	SegmentEmailLink    SegmentType = "emailLink"
)

// Segment is one typed run of a parsed paragraph
type Segment struct {
	Type      SegmentType `json:"type"`
	Content   string      `json:"content,omitempty"`
	Text      string      `json:"text,omitempty"`
	ProjectID string      `json:"projectId,omitempty"`
	Path      string      `json:"path,omitempty"`
	URL       string      `json:"url,omitempty"`
	Email     string      `json:"email,omitempty"`
}

// Paragraph is an ordered run of segments
type Paragraph []Segment

var (
	whitespace = regexp.MustCompile(`\s+`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9-]`)
)

// Slugify lowercases s, joins words with dashes and drops anything else
func Slugify(s string) string {
	s = whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return nonSlug.ReplaceAllString(s, "")
}

// JoinPath appends a slugified name to a parent path
func JoinPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + Slugify(name)
}
