package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apiclient "github.com/axiom-os/ccp/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
	AdminToken string `json:"admin_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "configure":
		err = commandConfigure(args)
	case "tomain":
		err = commandTomain(args)
	case "feature":
		err = commandFeature(args)
	case "manifest":
		err = commandManifest(args)
	case "bind":
		err = commandBind(args)
	case "unbind":
		err = commandUnbind(args)
	case "resolve":
		err = commandResolve(args)
	case "promote":
		err = commandPromote(args)
	case "retire":
		err = commandRetire(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandConfigure(args []string) error {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	apiBase := fs.String("api", "", "Registry API base URL")
	token := fs.String("token", "", "Admin token for mutating commands")
	fs.Parse(args)

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = strings.TrimSpace(*apiBase)
	}
	if strings.TrimSpace(*token) != "" {
		cfg.AdminToken = strings.TrimSpace(*token)
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("configuration saved")
	return nil
}

func commandTomain(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: axiom tomain [list|create|get|delete]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return tomainList(args[1:])
	case "create":
		return tomainCreate(args[1:])
	case "get":
		return tomainGet(args[1:])
	case "delete":
		return tomainDelete(args[1:])
	default:
		return fmt.Errorf("unknown tomain command: %s", sub)
	}
}

func tomainList(args []string) error {
	fs := flag.NewFlagSet("tomain list", flag.ExitOnError)
	fs.Parse(args)

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tomains, err := client.ListTomains(ctx)
	if err != nil {
		return err
	}
	for _, t := range tomains {
		fmt.Printf("%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Owner, t.HealthStatus)
	}
	return nil
}

func tomainCreate(args []string) error {
	fs := flag.NewFlagSet("tomain create", flag.ExitOnError)
	name := fs.String("name", "", "Dotted tomain name (team.package.service)")
	owner := fs.String("owner", "", "Owning team or person")
	creator := fs.String("creator", "", "Creator (optional)")
	team := fs.String("team", "", "Team (optional)")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	if strings.TrimSpace(*owner) == "" {
		return errors.New("--owner is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, err := client.CreateTomain(ctx, apiclient.CreateTomainInput{
		Name:    *name,
		Owner:   *owner,
		Creator: *creator,
		Team:    *team,
	})
	if err != nil {
		return err
	}
	fmt.Printf("tomain created: %s (%s)\n", created.ID, created.Name)
	return nil
}

func tomainGet(args []string) error {
	fs := flag.NewFlagSet("tomain get", flag.ExitOnError)
	id := fs.String("id", "", "Tomain identifier")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	detail, err := client.GetTomain(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%s\t%s\n", detail.ID, detail.Name, detail.Owner, detail.HealthStatus)
	for env, hash := range detail.WasmHashes {
		fmt.Printf("  %s\t%s\n", env, hash)
	}
	for _, f := range detail.Features {
		fmt.Printf("  feature %s\t[%s]\n", f.Name, strings.Join(f.Environments, " "))
	}
	return nil
}

func tomainDelete(args []string) error {
	fs := flag.NewFlagSet("tomain delete", flag.ExitOnError)
	id := fs.String("id", "", "Tomain identifier")
	fs.Parse(args)

	if strings.TrimSpace(*id) == "" {
		return errors.New("--id is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteTomain(ctx, *id); err != nil {
		return err
	}
	fmt.Println("tomain deleted")
	return nil
}

func commandFeature(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: axiom feature [list|register|upload]")
	}
	sub := args[0]
	switch sub {
	case "list":
		return featureList(args[1:])
	case "register":
		return featureRegister(args[1:])
	case "upload":
		return featureUpload(args[1:])
	default:
		return fmt.Errorf("unknown feature command: %s", sub)
	}
}

func featureList(args []string) error {
	fs := flag.NewFlagSet("feature list", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	color := fs.String("color", "", "Restrict to features visible in this environment")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	features, err := client.ListFeatures(ctx, *tomainID, *color)
	if err != nil {
		return err
	}
	for _, f := range features {
		fmt.Printf("%s\t%s\t[%s]\n", f.Name, f.Status, strings.Join(f.Environments, " "))
	}
	return nil
}

func featureRegister(args []string) error {
	fs := flag.NewFlagSet("feature register", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	name := fs.String("name", "", "Feature name")
	branch := fs.String("branch", "", "Source branch (optional)")
	hash := fs.String("hash", "", "Artifact hash (optional)")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}
	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	feature, err := client.RegisterFeature(ctx, *tomainID, apiclient.RegisterFeatureInput{
		Name:         *name,
		Branch:       *branch,
		ArtifactHash: *hash,
	})
	if err != nil {
		return err
	}
	fmt.Printf("feature registered: %s in [%s]\n", feature.Name, strings.Join(feature.Environments, " "))
	return nil
}

func featureUpload(args []string) error {
	fs := flag.NewFlagSet("feature upload", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	name := fs.String("name", "", "Feature name")
	file := fs.String("file", "", "Path to the wasm binary")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" || strings.TrimSpace(*name) == "" {
		return errors.New("--tomain and --name are required")
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("--file is required")
	}
	wasm, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	feature, err := client.UploadFeatureWasm(ctx, *tomainID, *name, wasm)
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %d bytes for %s (%s)\n", len(wasm), feature.Name, feature.ArtifactHash)
	return nil
}

func commandManifest(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: axiom manifest [get|set]")
	}
	sub := args[0]
	switch sub {
	case "get":
		return manifestGet(args[1:])
	case "set":
		return manifestSet(args[1:])
	default:
		return fmt.Errorf("unknown manifest command: %s", sub)
	}
}

func manifestGet(args []string) error {
	fs := flag.NewFlagSet("manifest get", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	manifest, err := client.GetManifest(ctx, *tomainID)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", manifest.TomainID, manifest.Name)
	for name, res := range manifest.Resources {
		fmt.Printf("  %s -> %s (%s)\n", name, res.Alias, res.Type)
	}
	if manifest.VaultPath != "" {
		fmt.Printf("  vault: %s\n", manifest.VaultPath)
	}
	if len(manifest.Capabilities) > 0 {
		fmt.Printf("  capabilities: %s\n", strings.Join(manifest.Capabilities, " "))
	}
	return nil
}

func manifestSet(args []string) error {
	fs := flag.NewFlagSet("manifest set", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	file := fs.String("file", "", "Path to a manifest JSON file (resources, vault_path)")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("--file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var input apiclient.UpdateManifestInput
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("parse manifest file: %w", err)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	manifest, err := client.UpdateManifest(ctx, *tomainID, input)
	if err != nil {
		return err
	}
	fmt.Printf("manifest updated: %d resources\n", len(manifest.Resources))
	return nil
}

func commandBind(args []string) error {
	fs := flag.NewFlagSet("bind", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	alias := fs.String("alias", "", "Logical alias (e.g. db, cache)")
	target := fs.String("url", "", "Physical endpoint URL")
	color := fs.String("color", "", "Environment (DEV|QA|STAGING|PROD)")
	kind := fs.String("kind", "", "Binding kind (aliased|legacy, default aliased)")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}
	if strings.TrimSpace(*alias) == "" {
		return errors.New("--alias is required")
	}
	if strings.TrimSpace(*target) == "" {
		return errors.New("--url is required")
	}
	if strings.TrimSpace(*color) == "" {
		return errors.New("--color is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	record, err := client.UpsertBinding(ctx, apiclient.UpsertBindingInput{
		TomainID:    *tomainID,
		Alias:       *alias,
		PhysicalURL: *target,
		Environment: *color,
		Kind:        *kind,
	})
	if err != nil {
		return err
	}
	fmt.Printf("bound %s -> %s in %s\n", record.Alias, record.PhysicalURL, record.Environment)
	return nil
}

func commandUnbind(args []string) error {
	fs := flag.NewFlagSet("unbind", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	alias := fs.String("alias", "", "Logical alias")
	color := fs.String("color", "", "Environment")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" || strings.TrimSpace(*alias) == "" || strings.TrimSpace(*color) == "" {
		return errors.New("--tomain, --alias and --color are required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.DeleteBinding(ctx, *tomainID, *alias, *color); err != nil {
		return err
	}
	fmt.Println("binding removed")
	return nil
}

func commandResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	name := fs.String("name", "", "Dotted tomain name")
	color := fs.String("color", "DEV", "Environment to resolve against")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resolution, err := client.Resolve(ctx, *name, *color)
	if err != nil {
		return err
	}
	if len(resolution.Bindings) == 0 {
		fmt.Printf("no bindings for %s in %s\n", *name, resolution.Environment)
		return nil
	}
	for alias, endpoint := range resolution.Bindings {
		fmt.Printf("%s\t%s\n", alias, endpoint)
	}
	return nil
}

func commandPromote(args []string) error {
	fs := flag.NewFlagSet("promote", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	feature := fs.String("feature", "", "Feature name (omit for tomain-level promotion)")
	from := fs.String("from", "", "Source environment")
	to := fs.String("to", "", "Target environment")
	hash := fs.String("hash", "", "Artifact hash to carry to the target (optional)")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}
	if strings.TrimSpace(*from) == "" || strings.TrimSpace(*to) == "" {
		return errors.New("--from and --to are required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	input := apiclient.PromoteInput{From: *from, To: *to, ArtifactHash: *hash}
	var result apiclient.PromotionResult
	if strings.TrimSpace(*feature) != "" {
		input.Feature = *feature
		result, err = client.PromoteFeature(ctx, *tomainID, input)
	} else {
		result, err = client.Promote(ctx, *tomainID, input)
	}
	if err != nil {
		return err
	}
	if result.Feature != "" {
		fmt.Printf("feature %s promoted to %s [%s]\n", result.Feature, result.Environment, strings.Join(result.Environments, " "))
	} else {
		fmt.Printf("tomain promoted to %s [%s]\n", result.Environment, strings.Join(result.Environments, " "))
	}
	return nil
}

func commandRetire(args []string) error {
	fs := flag.NewFlagSet("retire", flag.ExitOnError)
	tomainID := fs.String("tomain", "", "Tomain identifier")
	feature := fs.String("feature", "", "Feature name (omit to retire the tomain)")
	color := fs.String("color", "", "Environment to retire from")
	fs.Parse(args)

	if strings.TrimSpace(*tomainID) == "" {
		return errors.New("--tomain is required")
	}
	if strings.TrimSpace(*color) == "" {
		return errors.New("--color is required")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Retire(ctx, *tomainID, *feature, *color); err != nil {
		return err
	}
	fmt.Println("retired")
	return nil
}

func newClient() (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts := []apiclient.Option{}
	if strings.TrimSpace(cfg.AdminToken) != "" {
		opts = append(opts, apiclient.WithAdminToken(cfg.AdminToken))
	}
	return apiclient.New(cfg.APIBaseURL, opts...)
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:8080"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "axiom", "config.json"), nil
}

func printUsage() {
	fmt.Printf("axiom CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	axiom configure [--api http://localhost:8080] [--token secret]
	axiom tomain list
	axiom tomain create --name team.package.service --owner <owner> [--creator who] [--team team]
	axiom tomain get --id <tomain-id>
	axiom tomain delete --id <tomain-id>
	axiom feature list --tomain <tomain-id> [--color ENV]
	axiom feature register --tomain <tomain-id> --name <feature> [--branch b] [--hash sha256:...]
	axiom feature upload --tomain <tomain-id> --name <feature> --file kernel.wasm
	axiom manifest get --tomain <tomain-id>
	axiom manifest set --tomain <tomain-id> --file manifest.json
	axiom bind --tomain <tomain-id> --alias db --url postgres://... --color QA [--kind legacy]
	axiom unbind --tomain <tomain-id> --alias db --color QA
	axiom resolve --name team.package.service [--color QA]
	axiom promote --tomain <tomain-id> --from DEV --to QA [--feature name] [--hash sha256:...]
	axiom retire --tomain <tomain-id> --color QA [--feature name]
	axiom version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
