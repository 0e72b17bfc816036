package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plantops/mv-backend/internal/config"
	"github.com/plantops/mv-backend/internal/database"
	"gopkg.in/yaml.v3"
)

type SeedData struct {
	Departments []Department `yaml:"departments"`
	Roles       []Role       `yaml:"roles"`
	Categories  []Category   `yaml:"categories"`
	Users       []User       `yaml:"users"`
	Machines    []Machine    `yaml:"machines"`
	Rules       []Rule       `yaml:"rules"`
}

type Department struct {
	Name string `yaml:"name"`
}

type Role struct {
	Name string `yaml:"name"`
}

type Category struct {
	Name string `yaml:"name"`
}

type User struct {
	Email      string  `yaml:"email"`
	Name       string  `yaml:"name"`
	Role       *string `yaml:"role,omitempty"`
	Department *string `yaml:"department,omitempty"`
}

type Machine struct {
	Name       string   `yaml:"name"`
	Category   *string  `yaml:"category,omitempty"`
	Department *string  `yaml:"department,omitempty"`
	Value      *float64 `yaml:"value,omitempty"`
	Approved   bool     `yaml:"approved"`
	Active     bool     `yaml:"active"`
}

type Rule struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Action        string   `yaml:"action"`
	Permission    string   `yaml:"permission"`
	Priority      int32    `yaml:"priority"`
	Roles         []string `yaml:"roles,omitempty"`
	Departments   []string `yaml:"departments,omitempty"`
	Categories    []string `yaml:"categories,omitempty"`
	ApproverRoles []string `yaml:"approver_roles,omitempty"`
	MaxValue      *float64 `yaml:"max_value,omitempty"`
	CreatedBy     string   `yaml:"created_by"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return errors.New("command required")
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "seed":
		return seedCommand(args)
	case "nuke":
		return nukeCommand(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func seedCommand(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.String("file", "", "YAML file to seed from")
	dir := fs.String("dir", "", "Directory of YAML files to seed from")
	dryRun := fs.Bool("dry-run", false, "Validate files without making database changes")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	files, err := resolveFiles(*file, *dir)
	if err != nil {
		return err
	}

	seedData, err := loadSeedData(files)
	if err != nil {
		return fmt.Errorf("failed to load seed data: %w", err)
	}

	if *dryRun {
		fmt.Println("dry run: validating data structure")
		return validateSeedData(seedData)
	}

	cfg := config.Load()
	seedDB, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer seedDB.Close()

	if err := seedDB.Migrate(); err != nil {
		return err
	}

	fmt.Printf("seeding database from %d file(s)\n", len(files))
	return applySeedData(context.Background(), seedDB.Pool(), seedData)
}

func nukeCommand(args []string) error {
	fs := flag.NewFlagSet("nuke", flag.ExitOnError)
	force := fs.Bool("force", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	if !*force && !confirmNuke() {
		fmt.Println("operation cancelled")
		return nil
	}

	cfg := config.Load()
	seedDB, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer seedDB.Close()

	fmt.Println("resetting database...")
	if err := seedDB.Reset(); err != nil {
		return err
	}

	fmt.Println("database reset complete - ready for seeding")
	return nil
}

func resolveFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, errors.New("must specify either --file or --dir")
	}

	if file != "" && dir != "" {
		return nil, errors.New("cannot specify both --file and --dir")
	}

	if file != "" {
		return []string{file}, nil
	}

	return findYAMLFiles(dir)
}

func findYAMLFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && isYAMLFile(path) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML files found in directory: %s", dir)
	}

	return files, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadSeedData(files []string) (*SeedData, error) {
	combined := &SeedData{}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", file, err)
		}

		var fileData SeedData
		if err := yaml.Unmarshal(data, &fileData); err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", file, err)
		}

		// Combine data from all files
		combined.Departments = append(combined.Departments, fileData.Departments...)
		combined.Roles = append(combined.Roles, fileData.Roles...)
		combined.Categories = append(combined.Categories, fileData.Categories...)
		combined.Users = append(combined.Users, fileData.Users...)
		combined.Machines = append(combined.Machines, fileData.Machines...)
		combined.Rules = append(combined.Rules, fileData.Rules...)
	}

	return combined, nil
}

func validateSeedData(data *SeedData) error {
	fmt.Printf("  Departments: %d\n", len(data.Departments))
	fmt.Printf("  Roles: %d\n", len(data.Roles))
	fmt.Printf("  Categories: %d\n", len(data.Categories))
	fmt.Printf("  Users: %d\n", len(data.Users))
	fmt.Printf("  Machines: %d\n", len(data.Machines))
	fmt.Printf("  Rules: %d\n", len(data.Rules))

	for _, rule := range data.Rules {
		if rule.CreatedBy == "" {
			return fmt.Errorf("rule %q missing created_by user email", rule.Name)
		}
	}

	fmt.Println("data structure is valid")
	return nil
}

func applySeedData(ctx context.Context, pool *pgxpool.Pool, data *SeedData) error {
	departmentIDs := make(map[string]uuid.UUID)
	for _, department := range data.Departments {
		var id uuid.UUID
		err := pool.QueryRow(ctx,
			`INSERT INTO departments (name) VALUES ($1) RETURNING id`,
			department.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create department %s: %w", department.Name, err)
		}
		departmentIDs[department.Name] = id
		fmt.Printf("created department: %s\n", department.Name)
	}

	roleIDs := make(map[string]uuid.UUID)
	for _, role := range data.Roles {
		var id uuid.UUID
		err := pool.QueryRow(ctx,
			`INSERT INTO roles (name) VALUES ($1) RETURNING id`,
			role.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create role %s: %w", role.Name, err)
		}
		roleIDs[role.Name] = id
		fmt.Printf("created role: %s\n", role.Name)
	}

	categoryIDs := make(map[string]uuid.UUID)
	for _, category := range data.Categories {
		var id uuid.UUID
		err := pool.QueryRow(ctx,
			`INSERT INTO categories (name) VALUES ($1) RETURNING id`,
			category.Name).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create category %s: %w", category.Name, err)
		}
		categoryIDs[category.Name] = id
		fmt.Printf("created category: %s\n", category.Name)
	}

	userIDs := make(map[string]uuid.UUID)
	for _, user := range data.Users {
		roleID, err := lookup(roleIDs, user.Role, "role")
		if err != nil {
			return fmt.Errorf("user %s: %w", user.Email, err)
		}
		departmentID, err := lookup(departmentIDs, user.Department, "department")
		if err != nil {
			return fmt.Errorf("user %s: %w", user.Email, err)
		}

		var id uuid.UUID
		err = pool.QueryRow(ctx,
			`INSERT INTO users (email, name, role_id, department_id) VALUES ($1, $2, $3, $4) RETURNING id`,
			user.Email, user.Name, roleID, departmentID).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to create user %s: %w", user.Email, err)
		}
		userIDs[user.Email] = id
		fmt.Printf("created user: %s\n", user.Email)
	}

	for _, machine := range data.Machines {
		categoryID, err := lookup(categoryIDs, machine.Category, "category")
		if err != nil {
			return fmt.Errorf("machine %s: %w", machine.Name, err)
		}
		departmentID, err := lookup(departmentIDs, machine.Department, "department")
		if err != nil {
			return fmt.Errorf("machine %s: %w", machine.Name, err)
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO machines (name, category_id, department_id, value, is_approved, is_active)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			machine.Name, categoryID, departmentID, machine.Value, machine.Approved, machine.Active)
		if err != nil {
			return fmt.Errorf("failed to create machine %s: %w", machine.Name, err)
		}
		fmt.Printf("created machine: %s\n", machine.Name)
	}

	for _, rule := range data.Rules {
		createdBy, exists := userIDs[rule.CreatedBy]
		if !exists {
			return fmt.Errorf("rule %q: creator %s not found", rule.Name, rule.CreatedBy)
		}

		ruleRoles, err := lookupAll(roleIDs, rule.Roles, "role")
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		ruleDepartments, err := lookupAll(departmentIDs, rule.Departments, "department")
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		ruleCategories, err := lookupAll(categoryIDs, rule.Categories, "category")
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		approverRoles, err := lookupAll(roleIDs, rule.ApproverRoles, "role")
		if err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO permission_rules
				(name, description, action, user_ids, role_ids, department_ids, category_ids,
				 permission, approver_roles, max_value, priority, is_active, created_by)
			VALUES ($1, $2, $3, '{}', $4, $5, $6, $7, $8, $9, $10, true, $11)`,
			rule.Name, rule.Description, rule.Action, ruleRoles, ruleDepartments, ruleCategories,
			rule.Permission, approverRoles, rule.MaxValue, rule.Priority, createdBy)
		if err != nil {
			return fmt.Errorf("failed to create rule %q: %w", rule.Name, err)
		}
		fmt.Printf("created rule: %s\n", rule.Name)
	}

	fmt.Println("seeding completed")
	return nil
}

func lookup(ids map[string]uuid.UUID, name *string, kind string) (*uuid.UUID, error) {
	if name == nil {
		return nil, nil
	}
	id, exists := ids[*name]
	if !exists {
		return nil, fmt.Errorf("%s %s not found", kind, *name)
	}
	return &id, nil
}

func lookupAll(ids map[string]uuid.UUID, names []string, kind string) ([]uuid.UUID, error) {
	resolved := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id, exists := ids[name]
		if !exists {
			return nil, fmt.Errorf("%s %s not found", kind, name)
		}
		resolved = append(resolved, id)
	}
	return resolved, nil
}

func confirmNuke() bool {
	fmt.Print("warning: this will delete all data from the database. are you sure? (yes/no): ")

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	return strings.ToLower(strings.TrimSpace(response)) == "yes"
}

func printUsage() {
	fmt.Println("Seeder Tool - Database seeding utility for Machine Vault")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  seeder <command> [flags]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  seed        Seed database from YAML files")
	fmt.Println("  nuke        Delete all data from database")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("SEED FLAGS:")
	fmt.Println("  --file      Path to a single YAML file")
	fmt.Println("  --dir       Path to directory containing YAML files")
	fmt.Println("  --dry-run   Validate files without making database changes")
	fmt.Println()
	fmt.Println("NUKE FLAGS:")
	fmt.Println("  --force     Skip confirmation prompt")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  seeder seed --file dev-data.yaml")
	fmt.Println("  seeder seed --dir ./seed-data/")
	fmt.Println("  seeder seed --dir ./seed-data/ --dry-run")
	fmt.Println("  seeder nuke")
	fmt.Println("  seeder nuke --force")
}
