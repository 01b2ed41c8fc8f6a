package entity

type Template struct {
	ID          *uint64 `json:"id,omitempty"`
	UserID      *uint64 `json:"user_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	HtmlContent *string `json:"html_content,omitempty"`
	TextContent *string `json:"text_content,omitempty"`
	CreateTime  *uint64 `json:"create_time,omitempty"`
	UpdateTime  *uint64 `json:"update_time,omitempty"`
}

func (e *Template) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Template) GetHtmlContent() string {
	if e != nil && e.HtmlContent != nil {
		return *e.HtmlContent
	}
	return ""
}

func (e *Template) GetTextContent() string {
	if e != nil && e.TextContent != nil {
		return *e.TextContent
	}
	return ""
}

type Domain struct {
	ID         *uint64 `json:"id,omitempty"`
	UserID     *uint64 `json:"user_id,omitempty"`
	Name       *string `json:"name,omitempty"`
	Verified   *bool   `json:"verified,omitempty"`
	CreateTime *uint64 `json:"create_time,omitempty"`
}

func (e *Domain) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Domain) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Domain) GetVerified() bool {
	if e != nil && e.Verified != nil {
		return *e.Verified
	}
	return false
}
