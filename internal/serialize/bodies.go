package serialize

import "fmt"

// Bodies of comments that cannot be placed where they were made in Bitbucket
// Server are prefixed with a note saying where they came from.

// BodyWithOriginalLine marks a comment that was moved off its original line.
func BodyWithOriginalLine(line int, body string) string {
	return fmt.Sprintf(":twisted_rightwards_arrows: *Originally on **line %d** in Bitbucket Server:*\n\n%s", line, body)
}

// BodyForFileComment marks a file comment that was attached to the first
// position of the file's diff.
func BodyForFileComment(body string) string {
	return ":twisted_rightwards_arrows: *Originally a **file comment** in Bitbucket Server:*\n\n" + body
}

// BodyForReviewFileComment marks a pull request file comment that was moved
// to the main conversation. commitID may be empty when it could not be
// resolved.
func BodyForReviewFileComment(path, commitID, body string) string {
	return fmt.Sprintf(":twisted_rightwards_arrows: *Originally a **file comment** in Bitbucket Server*\n  `%s`@`%s`:\n\n%s", path, commitID, body)
}

// BodyWithThread marks a reply that was flattened out of a comment thread.
func BodyWithThread(parentURL, body string) string {
	return fmt.Sprintf(":arrow_right_hook: *Originally a reply to [this comment](%s) from a comment thread in Bitbucket Server:*\n\n%s", parentURL, body)
}
