package main

import (
	"context"
	"fmt"
	"time"
)

// setDeadline stores at as the submission deadline; a nil at clears it.
func (cli *commandLine) setDeadline(at *time.Time) error {
	settings, err := cli.settingSvc.SetDeadline(context.Background(), at, "")
	if err != nil {
		return err
	}
	if settings.Deadline.At == nil {
		fmt.Println("deadline cleared")
	} else {
		fmt.Printf("deadline set to %s\n", settings.Deadline.At.Local().Format(time.RFC1123))
	}
	return nil
}
