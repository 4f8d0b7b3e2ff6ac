package render

import (
	"fmt"
	"html/template"
	"strings"
)

// CommentFragment renders a comment. Replies are wrapped for out-of-band
// insertion into their parent's reply container.
func (r *Renderer) CommentFragment(node *CommentNode, firstTopLevel bool) (string, error) {
	html, err := r.Fragment("comment", node)
	if err != nil {
		return "", err
	}
	c := node.Comment
	if c.ParentID != nil {
		return fmt.Sprintf(`<div hx-swap-oob="beforeend:#replies-for-%d">%s</div>`, *c.ParentID, html), nil
	}
	if firstTopLevel {
		html += `<p id="no-comments-placeholder" hx-swap-oob="delete"></p>`
	}
	return html, nil
}

// BroadcastCommentFragment renders a created or edited comment for live
// subscribers, where every swap must be out-of-band.
func (r *Renderer) BroadcastCommentFragment(node *CommentNode, created, firstTopLevel bool) (string, error) {
	if !created {
		oob := *node
		oob.OOB = true
		return r.Fragment("comment", &oob)
	}
	if node.Comment.ParentID != nil {
		return r.CommentFragment(node, false)
	}
	html, err := r.Fragment("comment", node)
	if err != nil {
		return "", err
	}
	out := `<div hx-swap-oob="beforeend:#comments-list">` + html + `</div>`
	if firstTopLevel {
		out += `<p id="no-comments-placeholder" hx-swap-oob="delete"></p>`
	}
	return out, nil
}

// DeletedCommentBroadcast removes a comment for live subscribers and shows
// the empty state when it was the last one.
func (r *Renderer) DeletedCommentBroadcast(commentID uint, noneLeft bool) (string, error) {
	out := fmt.Sprintf(`<div id="comment-%d" hx-swap-oob="delete"></div>`, commentID)
	if noneLeft {
		empty, err := r.NoCommentsFragment()
		if err != nil {
			return "", err
		}
		out += empty
	}
	return out, nil
}

// NoCommentsFragment replaces the comment list with the empty-state placeholder.
func (r *Renderer) NoCommentsFragment() (string, error) {
	inner, err := r.Fragment("no_comments", nil)
	if err != nil {
		return "", err
	}
	return `<div id="comments-list" hx-swap-oob="innerHTML">` + inner + `</div>`, nil
}

// VoteFragment renders the vote widget.
func (r *Renderer) VoteFragment(v VoteView) (string, error) {
	return r.Fragment("vote_actions", v)
}

// FollowFragment renders the follow button.
func (r *Renderer) FollowFragment(v FollowView) (string, error) {
	return r.Fragment("follow_button", v)
}

// ProfileHeaderFragment renders the editable profile header.
func (r *Renderer) ProfileHeaderFragment(p *ProfilePage) (string, error) {
	return r.Fragment("profile_header", p)
}

// ErrorFragment is the inline message shown next to a failed form.
func ErrorFragment(message string) string {
	var b strings.Builder
	b.WriteString(`<div class="error" role="alert">`)
	template.HTMLEscape(&b, []byte(message))
	b.WriteString(`</div>`)
	return b.String()
}
