package portal

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/airqa/qaportal/internal/apiclient"
)

// BulkUploadMarks uploads a marks sheet for every student of an assessment
func (p *Portal) BulkUploadMarks(ctx context.Context, assessmentID string, sheet File) (json.RawMessage, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	if err := requireFile("file", sheet); err != nil {
		return nil, err
	}
	form := apiclient.NewForm().AddFile("file", sheet.Name, sheet.Content)

	var raw json.RawMessage
	if err := p.api.PostForm(ctx, pathf("/assessments/%s/submissions/bulk-upload", assessmentID), form, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UploadSolutionFile uploads one student's answer script
func (p *Portal) UploadSolutionFile(ctx context.Context, assessmentID, regNo string, solution File) (json.RawMessage, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	if err := requireID("reg_no", regNo); err != nil {
		return nil, err
	}
	if err := requireFile("file", solution); err != nil {
		return nil, err
	}
	form := apiclient.NewForm().
		AddField("reg_no", strings.TrimSpace(regNo)).
		AddFile("file", solution.Name, solution.Content)

	var raw json.RawMessage
	if err := p.api.PostForm(ctx, pathf("/assessments/%s/submissions/file", assessmentID), form, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UploadSubmissionsZip uploads a zip archive of answer scripts for an assessment
func (p *Portal) UploadSubmissionsZip(ctx context.Context, assessmentID string, archive File) (json.RawMessage, error) {
	if err := requireID("assessment_id", assessmentID); err != nil {
		return nil, err
	}
	if err := requireFile("file", archive); err != nil {
		return nil, err
	}
	form := apiclient.NewForm().AddFile("file", archive.Name, archive.Content)

	var raw json.RawMessage
	if err := p.api.PostForm(ctx, pathf("/assessments/%s/submissions/upload-zip", assessmentID), form, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// UploadCourseFiles uploads course folder documents. With a category the files go to
// /upload/{courseID}/{category} as a single "file" part each, without one they are sent
// together as "files" parts to /upload/{courseID}.
func (p *Portal) UploadCourseFiles(ctx context.Context, courseID, category string, files ...File) (json.RawMessage, error) {
	if err := requireID("course_id", courseID); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apiclient.NewValidationError(apiclient.FieldError{Field: "files", Message: "at least one file is required"})
	}
	for _, f := range files {
		if err := requireFile("files", f); err != nil {
			return nil, err
		}
	}

	path := pathf("/upload/%s", courseID)
	field := "files"
	if category != "" {
		path = pathf("/upload/%s/%s", courseID, category)
		field = "file"
	}

	form := apiclient.NewForm()
	for _, f := range files {
		form.AddFile(field, f.Name, f.Content)
	}

	var raw json.RawMessage
	if err := p.api.PostForm(ctx, path, form, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
