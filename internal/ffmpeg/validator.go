// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// PlexConvert - Plex 视频转码工具

package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator decides if a path is eligible as conversion input or output.
// Block rules win over allow rules; with no allow rules everything not
// blocked passes. The batch scanner blocks `_plex\.mp4$` so finished
// outputs are never re-enqueued as inputs.
type Validator interface {
	IsValid(path string) bool
}

type validator struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator creates a new Validator. Empty expressions are ignored.
func NewValidator(allow, block []string) (Validator, error) {
	allowRe, err := compileAll(allow)
	if err != nil {
		return nil, fmt.Errorf("invalid allow expression: %w", err)
	}
	blockRe, err := compileAll(block)
	if err != nil {
		return nil, fmt.Errorf("invalid block expression: %w", err)
	}
	return &validator{allow: allowRe, block: blockRe}, nil
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exprs {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (v *validator) IsValid(path string) bool {
	for _, e := range v.block {
		if e.MatchString(path) {
			return false
		}
	}
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(path) {
			return true
		}
	}
	return false
}
