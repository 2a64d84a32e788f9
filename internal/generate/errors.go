package generate

import "github.com/reelsmith/studio/internal/apperr"

var (
	ErrShotNotFound         = apperr.New(apperr.KindNotFound, "SHOT_NOT_FOUND", "shot not found")
	ErrKeyframeNotFound     = apperr.New(apperr.KindNotFound, "KEYFRAME_NOT_FOUND", "keyframe not found")
	ErrClipNotFound         = apperr.New(apperr.KindNotFound, "CLIP_NOT_FOUND", "clip not found")
	ErrInvalidInputMode     = apperr.New(apperr.KindValidation, "INVALID_INPUT_MODE", "input_mode must be image_to_video or text_to_video")
	ErrInvalidMode          = apperr.New(apperr.KindValidation, "INVALID_MODE", "mode must be demo or production")
	ErrKeyframeRequired     = apperr.New(apperr.KindValidation, "KEYFRAME_REQUIRED", "image_to_video requires keyframe_id")
	ErrKeyframeNotCompleted = apperr.New(apperr.KindValidation, "KEYFRAME_NOT_COMPLETED", "keyframe has no completed output")
	ErrKeyframeShotMismatch = apperr.New(apperr.KindValidation, "KEYFRAME_SHOT_MISMATCH", "keyframe belongs to a different shot")
	ErrPromptRequired       = apperr.New(apperr.KindValidation, "PROMPT_REQUIRED", "no prompt given and the shot has no description")
	ErrNotSelectable        = apperr.New(apperr.KindValidation, "NOT_SELECTABLE", "failed artifacts cannot be selected")
	ErrNoOutput             = apperr.New(apperr.KindNonRetryable, "NO_OUTPUT", "job completed without a usable output")
)
