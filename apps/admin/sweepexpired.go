package main

import (
	"context"
)

func (cli *commandLine) sweepExpired() error {
	otps, sessions, err := cli.authSvc.SweepExpired(context.Background())
	if err != nil {
		return err
	}
	logger.Printf("deleted %d expired code(s), %d expired admin session record(s)\n", otps, sessions)
	return nil
}
