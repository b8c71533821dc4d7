// Package tap renders buffered test results as a TAP version 13 document.
//
// A report has the shape:
//
//	TAP version 13
//	1..N
//	ok|not ok <n> <description>[ # skip <reason>]
//	  ---
//	  message: '<error>'
//	  severity: fail
//	  data:
//	  <stack trace lines>
//	  ...
//
// The YAML block only follows results that carry an error message.
package tap
