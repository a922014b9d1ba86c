package serialize

// URLTemplates returns the RFC 6570 templates the importer uses to parse the
// model URLs produced by URLService. It is written to urls.json.
func URLTemplates() map[string]any {
	const repo = "{scheme}://{+host}/{segment}/{owner}/repos/{repository}"
	return map[string]any{
		"user":         "{scheme}://{+host}/{segment}/{user}",
		"organization": "{scheme}://{+host}/projects/{organization}",
		"team":         "{scheme}://{+host}/admin/groups/view?name={+team}{#owner}",
		"repository":   repo,
		"issue_comment": map[string]string{
			"pull_request": repo + "/pull-requests/{number}/overview?commentId={issue_comment}",
		},
		"issue_event": map[string]string{
			"pull_request": repo + "/pull-requests/{number}#event-{event}",
		},
		"pull_request":                repo + "/pull-requests/{pull_request}",
		"pull_request_review_comment": repo + "/pull-requests/{pull_request}/overview?commentId={pull_request_review_comment}#r{pull_request_review_comment}",
		"commit_comment":              repo + "/commits/{commit}?commentId={commit_comment}#commitcomment-{commit_comment}",
		"release":                     repo + "/browse?at=refs%2Ftags%2F{+release}",
		"protected_branch":            "{scheme}://{+host}/plugins/servlet/branch-permissions/{owner}/{repository}{#protected_branch}",
	}
}
