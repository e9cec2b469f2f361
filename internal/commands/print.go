package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"localnotify/internal/localnotify"
)

type recordView struct {
	Name        string     `json:"name"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Repeat      string     `json:"repeat,omitempty"`
	UserDefined any        `json:"userDefined,omitempty"`
}

func viewOf(r localnotify.Record) recordView {
	v := recordView{Name: r.Name, Title: r.Title, Text: r.Text, UserDefined: r.UserDefined}
	if !r.Date.IsZero() {
		d := r.Date
		v.Date = &d
	}
	if r.Repeat != nil {
		v.Repeat = r.Repeat.String()
	}
	return v
}

// printJSON writes one record per line.
func printJSON(w io.Writer, recs ...localnotify.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(viewOf(r)); err != nil {
			return err
		}
	}
	return nil
}

func printTable(w io.Writer, recs []localnotify.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFIRES\tREPEAT\tTITLE")
	for _, r := range recs {
		v := viewOf(r)
		fires := "-"
		if v.Date != nil {
			fires = v.Date.Local().Format(time.DateTime)
		}
		repeat := v.Repeat
		if repeat == "" {
			repeat = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Name, fires, repeat, v.Title)
	}
	return tw.Flush()
}
