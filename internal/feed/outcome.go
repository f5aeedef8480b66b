package feed

// Outcome is the tagged result of a fetch: posts, a deliberate empty, or a
// classified error. Fetchers return an Outcome from every path; they never
// let a raw error escape their boundary.
type Outcome struct {
	Posts []Post
	Err   *Error
}

// Success wraps a non-empty post list
func Success(posts []Post) Outcome {
	return Outcome{Posts: posts}
}

// Empty is the deliberate no-data outcome, distinct from NoPostsFound:
// Empty means "not configured", NoPostsFound means "configured but broken"
func Empty() Outcome {
	return Outcome{}
}

// Fail wraps a classified error
func Fail(err *Error) Outcome {
	return Outcome{Err: err}
}

// IsError reports whether the fetch failed
func (o Outcome) IsError() bool {
	return o.Err != nil
}

// HasPosts reports whether the fetch produced at least one post
func (o Outcome) HasPosts() bool {
	return o.Err == nil && len(o.Posts) > 0
}
