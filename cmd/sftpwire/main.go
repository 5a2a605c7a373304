package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/danmuck/sftpwire/internal/client"
	"github.com/danmuck/sftpwire/internal/logging"
	"github.com/danmuck/sftpwire/internal/sshchan"
)

// envPassword supplies password authentication without putting secrets in
// argv or the config file.
const envPassword = "SFTPWIRE_PASSWORD"

func main() {
	args := argparse.NewParser("sftpwire", "File-transfer subsystem transport client: "+
		"opens the subsystem channel, negotiates the protocol version and reports server capabilities")

	cfgPath := args.String("c", "config", &argparse.Options{Required: false, Help: "TOML config file"})
	addr := args.String("a", "addr", &argparse.Options{Required: false, Help: "Server address (host:port)"})
	user := args.String("u", "user", &argparse.Options{Required: false, Help: "Login user"})
	keyFile := args.String("i", "identity", &argparse.Options{Required: false, Help: "Private key file"})
	renegotiate := args.Int("n", "negotiate", &argparse.Options{Required: false,
		Help: "Renegotiate to this protocol version after the handshake", Default: 0})
	debug := args.Flag("d", "debug", &argparse.Options{Help: "Enable debug logging"})

	if err := args.Parse(os.Args); err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	if *debug && os.Getenv(logging.EnvLogLevel) == "" {
		os.Setenv(logging.EnvLogLevel, "debug")
	}
	logging.ConfigureRuntime()

	if err := run(*cfgPath, *addr, *user, *keyFile, *renegotiate); err != nil {
		fmt.Fprintf(os.Stderr, "sftpwire: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, addr, user, keyFile string, renegotiate int) error {
	cfg := defaultServiceConfig()
	if cfgPath != "" {
		loaded, err := loadServiceConfig(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if user != "" {
		cfg.User = user
	}
	if keyFile != "" {
		cfg.KeyFile = keyFile
	}
	if err := validateServiceConfig(cfg); err != nil {
		return err
	}

	sshCfg, err := clientSSHConfig(cfg)
	if err != nil {
		return err
	}

	conn, err := ssh.Dial("tcp", cfg.Addr, sshCfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	defer conn.Close()
	log.Info().Str("addr", cfg.Addr).Str("user", cfg.User).Msg("connected")

	engine, err := client.New(sshchan.New(conn, cfg.Subsystem), cfg.Engine)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("negotiated version: %d\n", engine.Version())
	exts := engine.ServerExtensions()
	if exts.Len() == 0 {
		fmt.Println("server extensions: none")
	} else {
		fmt.Printf("server extensions: %s\n", strings.Join(exts.Names(), ", "))
	}

	if renegotiate > 0 {
		selected, err := engine.NegotiateVersion(func(current uint32, available []uint32) (uint32, error) {
			return uint32(renegotiate), nil
		})
		if err != nil {
			return fmt.Errorf("renegotiate to %d: %w", renegotiate, err)
		}
		fmt.Printf("renegotiated version: %d\n", selected)
	}

	return nil
}

func clientSSHConfig(cfg serviceConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		raw, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if password := os.Getenv(envPassword); password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no authentication configured: set key_file or %s", envPassword)
	}

	// Host keys are only verified when a known_hosts file is configured.
	hostKeys := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeys = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Engine.OpenTimeout,
	}, nil
}
