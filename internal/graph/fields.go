package graph

// Logical table names used as keys of Tables.
const (
	TableWorldviews        = "worldviews"
	TableOutcomes          = "outcomes"
	TableProblemCategories = "problem_categories"
	TableProblems          = "problems"
	TableProjects          = "projects"
	TableOrganizations     = "organizations"
	TablePeople            = "people"
	TablePrograms          = "programs"
)

// RequiredTables lists every table an assembly needs, in resolution order.
var RequiredTables = []string{
	TableWorldviews,
	TableOutcomes,
	TableProblemCategories,
	TableProblems,
	TableProjects,
	TableOrganizations,
	TablePeople,
	TablePrograms,
}

// TableNames maps logical tables to the names the record store uses.
type TableNames struct {
	Worldviews        string `mapstructure:"worldviews" yaml:"worldviews"`
	Outcomes          string `mapstructure:"outcomes" yaml:"outcomes"`
	ProblemCategories string `mapstructure:"problem_categories" yaml:"problem_categories"`
	Problems          string `mapstructure:"problems" yaml:"problems"`
	Projects          string `mapstructure:"projects" yaml:"projects"`
	Organizations     string `mapstructure:"organizations" yaml:"organizations"`
	People            string `mapstructure:"people" yaml:"people"`
	Programs          string `mapstructure:"programs" yaml:"programs"`
}

func DefaultTableNames() TableNames {
	return TableNames{
		Worldviews:        "Worldviews",
		Outcomes:          "Outcomes",
		ProblemCategories: "Problem Categories",
		Problems:          "Problems",
		Projects:          "Projects",
		Organizations:     "Organizations",
		People:            "People",
		Programs:          "Programs",
	}
}

// Source returns logical name → store name, with defaults for blanks.
func (t TableNames) Source() map[string]string {
	d := DefaultTableNames()
	return map[string]string{
		TableWorldviews:        or(t.Worldviews, d.Worldviews),
		TableOutcomes:          or(t.Outcomes, d.Outcomes),
		TableProblemCategories: or(t.ProblemCategories, d.ProblemCategories),
		TableProblems:          or(t.Problems, d.Problems),
		TableProjects:          or(t.Projects, d.Projects),
		TableOrganizations:     or(t.Organizations, d.Organizations),
		TablePeople:            or(t.People, d.People),
		TablePrograms:          or(t.Programs, d.Programs),
	}
}

type WorldviewFields struct {
	Name        string `mapstructure:"name"`
	ShortName   string `mapstructure:"short_name"`
	Tagline     string `mapstructure:"tagline"`
	Description string `mapstructure:"description"`
	Color       string `mapstructure:"color"`
}

type OutcomeFields struct {
	Name               string `mapstructure:"name"`
	ShortDescription   string `mapstructure:"short_description"`
	LongDescription    string `mapstructure:"long_description"`
	Worldviews         string `mapstructure:"worldviews"`
	WorldviewRelevance string `mapstructure:"worldview_relevance"`
}

type ProblemCategoryFields struct {
	Name string `mapstructure:"name"`
}

type ProblemFields struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Category    string `mapstructure:"category"`
	Projects    string `mapstructure:"projects"`
}

type ProjectFields struct {
	Name           string `mapstructure:"name"`
	Description    string `mapstructure:"description"`
	PriorityArea   string `mapstructure:"priority_area"`
	ProjectTypes   string `mapstructure:"project_types"`
	GeographicTags string `mapstructure:"geographic_tags"`
	Status         string `mapstructure:"status"`
	Organizations  string `mapstructure:"organizations"`
}

type OrganizationFields struct {
	Name                    string `mapstructure:"name"`
	Types                   string `mapstructure:"types"`
	EcosystemRoles          string `mapstructure:"ecosystem_roles"`
	Website                 string `mapstructure:"website"`
	City                    string `mapstructure:"city"`
	State                   string `mapstructure:"state"`
	Country                 string `mapstructure:"country"`
	People                  string `mapstructure:"people"`
	AffiliatedOrganizations string `mapstructure:"affiliated_organizations"`
}

type PersonFields struct {
	Name  string `mapstructure:"name"`
	Title string `mapstructure:"title"`
}

type ProgramFields struct {
	Name          string `mapstructure:"name"`
	Organizations string `mapstructure:"organizations"`
	ProgramType   string `mapstructure:"program_type"`
	Description   string `mapstructure:"description"`
	Length        string `mapstructure:"length"`
	States        string `mapstructure:"states"`
	Price         string `mapstructure:"price"`
	Webpage       string `mapstructure:"webpage"`
}

// FieldNames names the source fields read for every table.
type FieldNames struct {
	Worldview       WorldviewFields       `mapstructure:"worldview"`
	Outcome         OutcomeFields         `mapstructure:"outcome"`
	ProblemCategory ProblemCategoryFields `mapstructure:"problem_category"`
	Problem         ProblemFields         `mapstructure:"problem"`
	Project         ProjectFields         `mapstructure:"project"`
	Organization    OrganizationFields    `mapstructure:"organization"`
	Person          PersonFields          `mapstructure:"person"`
	Program         ProgramFields         `mapstructure:"program"`
}

func DefaultFieldNames() FieldNames {
	return FieldNames{
		Worldview: WorldviewFields{
			Name:        "Name",
			ShortName:   "Short Name",
			Tagline:     "Tagline",
			Description: "Description",
			Color:       "Color",
		},
		Outcome: OutcomeFields{
			Name:               "Name",
			ShortDescription:   "Short Description",
			LongDescription:    "Long Description",
			Worldviews:         "Worldviews",
			WorldviewRelevance: "Worldview Relevance",
		},
		ProblemCategory: ProblemCategoryFields{Name: "Name"},
		Problem: ProblemFields{
			Name:        "Name",
			Description: "Description",
			Category:    "Category",
			Projects:    "Projects",
		},
		Project: ProjectFields{
			Name:           "Name",
			Description:    "Description",
			PriorityArea:   "Priority Area",
			ProjectTypes:   "Project Type",
			GeographicTags: "Geographic Focus",
			Status:         "Status",
			Organizations:  "Organizations",
		},
		Organization: OrganizationFields{
			Name:                    "Name",
			Types:                   "Type",
			EcosystemRoles:          "Ecosystem Role",
			Website:                 "Website",
			City:                    "City",
			State:                   "State",
			Country:                 "Country",
			People:                  "People",
			AffiliatedOrganizations: "Affiliated Organizations",
		},
		Person: PersonFields{Name: "Name", Title: "Title"},
		Program: ProgramFields{
			Name:          "Name",
			Organizations: "Organizations",
			ProgramType:   "Program Type",
			Description:   "Description",
			Length:        "Length",
			States:        "States",
			Price:         "Price",
			Webpage:       "Webpage",
		},
	}
}

// WithDefaults fills every blank field name from DefaultFieldNames.
func (f FieldNames) WithDefaults() FieldNames {
	d := DefaultFieldNames()

	f.Worldview.Name = or(f.Worldview.Name, d.Worldview.Name)
	f.Worldview.ShortName = or(f.Worldview.ShortName, d.Worldview.ShortName)
	f.Worldview.Tagline = or(f.Worldview.Tagline, d.Worldview.Tagline)
	f.Worldview.Description = or(f.Worldview.Description, d.Worldview.Description)
	f.Worldview.Color = or(f.Worldview.Color, d.Worldview.Color)

	f.Outcome.Name = or(f.Outcome.Name, d.Outcome.Name)
	f.Outcome.ShortDescription = or(f.Outcome.ShortDescription, d.Outcome.ShortDescription)
	f.Outcome.LongDescription = or(f.Outcome.LongDescription, d.Outcome.LongDescription)
	f.Outcome.Worldviews = or(f.Outcome.Worldviews, d.Outcome.Worldviews)
	f.Outcome.WorldviewRelevance = or(f.Outcome.WorldviewRelevance, d.Outcome.WorldviewRelevance)

	f.ProblemCategory.Name = or(f.ProblemCategory.Name, d.ProblemCategory.Name)

	f.Problem.Name = or(f.Problem.Name, d.Problem.Name)
	f.Problem.Description = or(f.Problem.Description, d.Problem.Description)
	f.Problem.Category = or(f.Problem.Category, d.Problem.Category)
	f.Problem.Projects = or(f.Problem.Projects, d.Problem.Projects)

	f.Project.Name = or(f.Project.Name, d.Project.Name)
	f.Project.Description = or(f.Project.Description, d.Project.Description)
	f.Project.PriorityArea = or(f.Project.PriorityArea, d.Project.PriorityArea)
	f.Project.ProjectTypes = or(f.Project.ProjectTypes, d.Project.ProjectTypes)
	f.Project.GeographicTags = or(f.Project.GeographicTags, d.Project.GeographicTags)
	f.Project.Status = or(f.Project.Status, d.Project.Status)
	f.Project.Organizations = or(f.Project.Organizations, d.Project.Organizations)

	f.Organization.Name = or(f.Organization.Name, d.Organization.Name)
	f.Organization.Types = or(f.Organization.Types, d.Organization.Types)
	f.Organization.EcosystemRoles = or(f.Organization.EcosystemRoles, d.Organization.EcosystemRoles)
	f.Organization.Website = or(f.Organization.Website, d.Organization.Website)
	f.Organization.City = or(f.Organization.City, d.Organization.City)
	f.Organization.State = or(f.Organization.State, d.Organization.State)
	f.Organization.Country = or(f.Organization.Country, d.Organization.Country)
	f.Organization.People = or(f.Organization.People, d.Organization.People)
	f.Organization.AffiliatedOrganizations = or(f.Organization.AffiliatedOrganizations, d.Organization.AffiliatedOrganizations)

	f.Person.Name = or(f.Person.Name, d.Person.Name)
	f.Person.Title = or(f.Person.Title, d.Person.Title)

	f.Program.Name = or(f.Program.Name, d.Program.Name)
	f.Program.Organizations = or(f.Program.Organizations, d.Program.Organizations)
	f.Program.ProgramType = or(f.Program.ProgramType, d.Program.ProgramType)
	f.Program.Description = or(f.Program.Description, d.Program.Description)
	f.Program.Length = or(f.Program.Length, d.Program.Length)
	f.Program.States = or(f.Program.States, d.Program.States)
	f.Program.Price = or(f.Program.Price, d.Program.Price)
	f.Program.Webpage = or(f.Program.Webpage, d.Program.Webpage)

	return f
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
