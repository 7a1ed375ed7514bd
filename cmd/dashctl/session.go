package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

var errNoSession = errors.New("no hay una sesión activa, usá dashctl login")

var errRejected = errors.New("usuario o contraseña incorrectos")

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "sign in with the demo credentials",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "username"},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "password (prefer the interactive prompt)"},
	},
	Action: loginAction,
}

var logoutCommand = &cli.Command{
	Name:   "logout",
	Usage:  "erase the persisted session",
	Action: logoutAction,
}

var whoamiCommand = &cli.Command{
	Name:   "whoami",
	Usage:  "show the signed-in account",
	Action: whoamiAction,
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	mgr, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	out := writer(cmd)

	if mgr.IsAuthenticated() {
		fmt.Fprintf(out, "Ya iniciaste sesión como %s\n", mgr.State().User.DisplayName)
		return nil
	}

	src := cmd.Root().Reader
	in := bufio.NewReader(src)
	username := cmd.String("username")
	if username == "" {
		if username, err = promptLine(in, out, "Usuario: "); err != nil {
			return err
		}
	}
	password := cmd.String("password")
	if password == "" {
		if password, err = promptPassword(src, in, out, "Contraseña: "); err != nil {
			return err
		}
	}

	ok, err := mgr.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if !ok {
		return errRejected
	}

	fmt.Fprintf(out, "Bienvenido, %s\n", mgr.State().User.DisplayName)
	return nil
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	mgr, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}

	wasIn := mgr.IsAuthenticated()
	if err := mgr.Logout(ctx); err != nil {
		return err
	}

	if wasIn {
		fmt.Fprintln(writer(cmd), "Sesión cerrada")
	} else {
		fmt.Fprintln(writer(cmd), "No había una sesión activa")
	}
	return nil
}

func whoamiAction(ctx context.Context, cmd *cli.Command) error {
	mgr, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}

	st := mgr.State()
	if !st.IsAuthenticated {
		return errNoSession
	}

	u := st.User
	out := writer(cmd)
	fmt.Fprintf(out, "Titular:  %s\n", u.DisplayName)
	fmt.Fprintf(out, "Email:    %s\n", u.Email)
	fmt.Fprintf(out, "Cuenta:   %s\n", u.AccountNumber)
	fmt.Fprintf(out, "Saldo:    $ %s\n", u.Balance.StringFixed(2))
	return nil
}
