package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"hancock/internal/client"
	"hancock/internal/session/domain"
)

const timeLayout = "2006-01-02 15:04 MST"

func renderCreated(c *client.Created) string {
	var sb strings.Builder
	status := color.GreenString("created")
	if c.Replaced {
		status = color.YellowString("replaced pending session")
	}
	fmt.Fprintf(&sb, "%s %s\n", status, c.SID)
	fmt.Fprintf(&sb, "  Signing URL: %s\n", c.SigningURL)
	if !c.LinkExpiresAt.IsZero() {
		fmt.Fprintf(&sb, "  Expires:     %s\n", c.LinkExpiresAt.Format(timeLayout))
	}
	return sb.String()
}

func renderStatus(s *client.SessionStatus) string {
	var sb strings.Builder
	status := color.YellowString(string(s.Status))
	if s.Status == domain.StatusSigned {
		status = color.GreenString(string(s.Status))
	}
	fmt.Fprintf(&sb, "%s  %s\n", s.SID, status)
	fmt.Fprintf(&sb, "  Title:      %s\n", s.Title)
	fmt.Fprintf(&sb, "  Signee:     %s\n", s.SigneeEmail)
	fmt.Fprintf(&sb, "  Created by: %s\n", s.CreatedBy)
	if !s.CreatedOn.IsZero() {
		fmt.Fprintf(&sb, "  Created:    %s\n", s.CreatedOn.Format(timeLayout))
	}
	if s.SignedOn != nil {
		fmt.Fprintf(&sb, "  Signed:     %s\n", s.SignedOn.Format(timeLayout))
	}
	return sb.String()
}
