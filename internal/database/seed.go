package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is the YAML bootstrap format: tenants, their people and
// assignment rules. Loaded once at startup; existing records are matched
// by natural key (company name, user email, rule name) and left in place.
type SeedFile struct {
	MSPAdmins []SeedUser    `yaml:"msp_admins"`
	Companies []SeedCompany `yaml:"companies"`
}

// SeedCompany describes one tenant in the seed file
type SeedCompany struct {
	Name            string               `yaml:"name"`
	CriticalAssets  []string             `yaml:"critical_assets"`
	Users           []SeedUser           `yaml:"users"`
	Technicians     []SeedTechnician     `yaml:"technicians"`
	AssignmentRules []SeedAssignmentRule `yaml:"assignment_rules"`
	OnCallShifts    []SeedOnCallShift    `yaml:"on_call_shifts"`
}

// SeedUser describes a non-technician user
type SeedUser struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// SeedTechnician describes a technician with skills and capacity
type SeedTechnician struct {
	Name        string   `yaml:"name"`
	Email       string   `yaml:"email"`
	Skills      []string `yaml:"skills"`
	WorkloadMax int      `yaml:"workload_max"`
}

// SeedAssignmentRule describes one assignment rule
type SeedAssignmentRule struct {
	Name              string   `yaml:"name"`
	Priority          int      `yaml:"priority"`
	Severity          string   `yaml:"severity"`
	MinPriorityScore  *float64 `yaml:"min_priority_score"`
	MaxPriorityScore  *float64 `yaml:"max_priority_score"`
	CategoryContains  string   `yaml:"category_contains"`
	ToolSources       []string `yaml:"tool_sources"`
	RequiredSkills    []string `yaml:"required_skills"`
	TargetTechnicians []string `yaml:"target_technicians"` // emails
	Strategy          string   `yaml:"strategy"`
}

// SeedOnCallShift describes an on-call window for a technician
type SeedOnCallShift struct {
	Email    string    `yaml:"email"`
	StartsAt time.Time `yaml:"starts_at"`
	EndsAt   time.Time `yaml:"ends_at"`
}

// LoadSeedFile reads a YAML seed file and materializes its records.
func LoadSeedFile(db *gorm.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	return ApplySeed(db, &seed)
}

// ApplySeed creates the records described by the seed. Existing records
// are matched by natural key and not duplicated.
func ApplySeed(db *gorm.DB, seed *SeedFile) error {
	for _, su := range seed.MSPAdmins {
		if err := ensureUser(db, nil, su.Name, su.Email, RoleMSPAdmin); err != nil {
			return err
		}
	}

	for _, sc := range seed.Companies {
		company, err := ensureCompany(db, sc)
		if err != nil {
			return err
		}

		for _, su := range sc.Users {
			role := UserRole(su.Role)
			if role == "" {
				role = RoleManager
			}
			if err := ensureUser(db, &company.ID, su.Name, su.Email, role); err != nil {
				return err
			}
		}

		emailToUserID := make(map[string]uint)
		for _, st := range sc.Technicians {
			userID, err := ensureTechnician(db, company.ID, st)
			if err != nil {
				return err
			}
			emailToUserID[st.Email] = userID
		}

		for _, sr := range sc.AssignmentRules {
			if err := ensureAssignmentRule(db, company.ID, sr, emailToUserID); err != nil {
				return err
			}
		}

		for _, ss := range sc.OnCallShifts {
			userID, ok := emailToUserID[ss.Email]
			if !ok {
				log.Printf("Seed: on-call shift references unknown technician %s, skipping", ss.Email)
				continue
			}
			shift := OnCallShift{
				CompanyID: company.ID,
				UserID:    userID,
				StartsAt:  ss.StartsAt,
				EndsAt:    ss.EndsAt,
				Enabled:   true,
			}
			if err := db.Where("company_id = ? AND user_id = ? AND starts_at = ?",
				company.ID, userID, ss.StartsAt).FirstOrCreate(&shift).Error; err != nil {
				return fmt.Errorf("failed to seed on-call shift for %s: %w", ss.Email, err)
			}
		}
	}

	log.Printf("Seed applied: %d companies, %d MSP admins", len(seed.Companies), len(seed.MSPAdmins))
	return nil
}

func ensureCompany(db *gorm.DB, sc SeedCompany) (*Company, error) {
	var company Company
	err := db.Where("name = ?", sc.Name).First(&company).Error
	if err == gorm.ErrRecordNotFound {
		company = Company{
			UUID:           uuid.New().String(),
			Name:           sc.Name,
			CriticalAssets: StringList(sc.CriticalAssets),
		}
		if err := db.Create(&company).Error; err != nil {
			return nil, fmt.Errorf("failed to seed company %s: %w", sc.Name, err)
		}
		return &company, nil
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func ensureUser(db *gorm.DB, companyID *uint, name, email string, role UserRole) error {
	var user User
	err := db.Where("email = ?", email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = User{CompanyID: companyID, Name: name, Email: email, Role: role}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user %s: %w", email, err)
		}
		return nil
	}
	return err
}

func ensureTechnician(db *gorm.DB, companyID uint, st SeedTechnician) (uint, error) {
	var user User
	err := db.Where("email = ?", st.Email).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = User{CompanyID: &companyID, Name: st.Name, Email: st.Email, Role: RoleTechnician}
		if err := db.Create(&user).Error; err != nil {
			return 0, fmt.Errorf("failed to seed technician %s: %w", st.Email, err)
		}
	} else if err != nil {
		return 0, err
	}

	workloadMax := st.WorkloadMax
	if workloadMax <= 0 {
		workloadMax = DefaultWorkloadMax
	}

	var skills TechnicianSkills
	err = db.Where("user_id = ?", user.ID).First(&skills).Error
	if err == gorm.ErrRecordNotFound {
		skills = TechnicianSkills{
			UserID:       user.ID,
			CompanyID:    companyID,
			Skills:       StringList(st.Skills),
			WorkloadMax:  workloadMax,
			Availability: AvailabilityAvailable,
		}
		if err := db.Create(&skills).Error; err != nil {
			return 0, fmt.Errorf("failed to seed technician skills for %s: %w", st.Email, err)
		}
		return user.ID, nil
	}
	return user.ID, err
}

func ensureAssignmentRule(db *gorm.DB, companyID uint, sr SeedAssignmentRule, emails map[string]uint) error {
	var rule AssignmentRule
	err := db.Where("company_id = ? AND name = ?", companyID, sr.Name).First(&rule).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	var targets UintList
	for _, email := range sr.TargetTechnicians {
		if id, ok := emails[email]; ok {
			targets = append(targets, id)
		} else {
			log.Printf("Seed: rule %s references unknown technician %s, skipping target", sr.Name, email)
		}
	}

	strategy := AssignmentStrategy(sr.Strategy)
	if strategy == "" {
		strategy = StrategyLeastLoaded
	}

	rule = AssignmentRule{
		CompanyID: companyID,
		Name:      sr.Name,
		Enabled:   true,
		Priority:  sr.Priority,
		Conditions: RuleConditions{
			Severity:         AlertSeverity(sr.Severity),
			MinPriorityScore: sr.MinPriorityScore,
			MaxPriorityScore: sr.MaxPriorityScore,
			CategoryContains: sr.CategoryContains,
			ToolSources:      sr.ToolSources,
		},
		RequiredSkills:    StringList(sr.RequiredSkills),
		TargetTechnicians: targets,
		Strategy:          strategy,
	}
	if err := db.Create(&rule).Error; err != nil {
		return fmt.Errorf("failed to seed assignment rule %s: %w", sr.Name, err)
	}
	return nil
}
