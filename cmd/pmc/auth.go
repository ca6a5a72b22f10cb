package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/quasar/pmc/internal/authdb"
	"github.com/quasar/pmc/internal/msa"
)

// msaClientID is the Azure AD application id used for the device-code
// flow; a real deployment would own its own registration.
const msaClientID = "00000000-0000-0000-0000-000000000000"

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("login requires an id")
	}
	id := fs.Arg(0)

	cctx, _, err := g.buildContext()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.timeout)*time.Second)
		defer cancel()
	}

	client := msa.NewClient(msaClientID)
	session, err := client.Login(ctx, func(dc *msa.DeviceCode) {
		fmt.Printf("To sign in, open %s and enter code %s\n", dc.VerificationURI, dc.UserCode)
	})
	if err != nil {
		return err
	}
	session.ID = id

	db, err := authdb.Open(cctx.AuthDBPath())
	if err != nil {
		return err
	}
	db.Put(session)
	if err := db.SetActive(id); err != nil {
		return err
	}
	if err := db.Save(); err != nil {
		return err
	}

	fmt.Printf("logged in as %s (%s)\n", session.Username, id)
	return nil
}

func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("logout requires an id")
	}
	id := fs.Arg(0)

	cctx, _, err := g.buildContext()
	if err != nil {
		return err
	}

	db, err := authdb.Open(cctx.AuthDBPath())
	if err != nil {
		return err
	}
	db.Remove(id)
	if err := db.Save(); err != nil {
		return err
	}

	fmt.Printf("removed session %s\n", id)
	return nil
}
