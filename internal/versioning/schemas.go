package versioning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/studio"
)

// snapshotSchemas describe the minimum shape of each entity snapshot. They
// are intentionally open: unknown keys are allowed so older snapshots stay
// restorable after a field is added.
var snapshotSchemas = map[studio.EntityType]string{
	studio.EntityStory: `{"type":"object","required":["id","project_id","title"],"properties":{
		"id":{"type":"string","minLength":1},
		"project_id":{"type":"string"},
		"title":{"type":"string","minLength":1},
		"logline":{"type":"string"},
		"content":{"type":"string"},
		"version":{"type":"integer","minimum":1}}}`,

	studio.EntityScene: `{"type":"object","required":["id","project_id","title"],"properties":{
		"id":{"type":"string","minLength":1},
		"project_id":{"type":"string"},
		"story_id":{"type":"string"},
		"title":{"type":"string","minLength":1},
		"description":{"type":"string"},
		"order":{"type":"integer"},
		"version":{"type":"integer","minimum":1}}}`,

	studio.EntityShot: `{"type":"object","required":["id","scene_id"],"properties":{
		"id":{"type":"string","minLength":1},
		"scene_id":{"type":"string"},
		"order":{"type":"integer"},
		"environment":{"type":"string"},
		"subject":{"type":"string"},
		"action":{"type":"string"},
		"camera_movement":{"type":"string"},
		"lighting":{"type":"string"},
		"style":{"type":"string"},
		"duration":{"type":"number","minimum":0},
		"transition_type":{"type":"string"},
		"use_last_frame_as_first":{"type":"boolean"},
		"version":{"type":"integer","minimum":1}}}`,

	studio.EntityKeyframe: `{"type":"object","required":["id","shot_id","prompt","status"],"properties":{
		"id":{"type":"string","minLength":1},
		"shot_id":{"type":"string"},
		"workflow":{"type":"string"},
		"prompt":{"type":"string"},
		"seed":{"type":"integer"},
		"steps":{"type":"integer","minimum":0},
		"cfg":{"type":"number"},
		"width":{"type":"integer","minimum":0},
		"height":{"type":"integer","minimum":0},
		"reference_strength":{"type":"number","minimum":0,"maximum":1},
		"status":{"enum":["pending","processing","completed","failed"]},
		"version":{"type":"integer","minimum":1}}}`,

	studio.EntityClip: `{"type":"object","required":["id","shot_id","input_mode","prompt","status"],"properties":{
		"id":{"type":"string","minLength":1},
		"shot_id":{"type":"string"},
		"keyframe_id":{"type":"string"},
		"input_mode":{"enum":["image_to_video","text_to_video"]},
		"mode":{"enum":["demo","production"]},
		"prompt":{"type":"string"},
		"seed":{"type":"integer"},
		"duration":{"type":"number","minimum":0},
		"fps":{"type":"integer","minimum":0},
		"reference_strength":{"type":"number","minimum":0,"maximum":1},
		"status":{"enum":["pending","processing","completed","failed"]},
		"version":{"type":"integer","minimum":1}}}`,

	studio.EntityTimeline: `{"type":"object","required":["id","project_id","name","clip_ids"],"properties":{
		"id":{"type":"string","minLength":1},
		"project_id":{"type":"string"},
		"name":{"type":"string","minLength":1},
		"clip_ids":{"type":"array","items":{"type":"string"}},
		"fps":{"type":"integer","minimum":1},
		"version":{"type":"integer","minimum":1}}}`,
}

// Validator checks snapshots against the per-entity schemas.
type Validator struct {
	schemas map[studio.EntityType]*gojsonschema.Schema
}

// NewValidator compiles every snapshot schema.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[studio.EntityType]*gojsonschema.Schema, len(snapshotSchemas))}
	for t, src := range snapshotSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot schema for %s: %w", t, err)
		}
		v.schemas[t] = schema
	}
	return v, nil
}

// Validate returns a validation error listing every schema violation.
func (v *Validator) Validate(t studio.EntityType, snapshot map[string]any) error {
	schema, ok := v.schemas[t]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}

	doc, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return apperr.Validation("invalid %s snapshot: %s", t, strings.Join(errs, "; "))
	}
	return nil
}
