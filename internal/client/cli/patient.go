package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// patientFields binds one flag per editable patient field.
type patientFields struct {
	values map[string]*string
	fs     *pflag.FlagSet
}

var patientFlagNames = []struct{ name, usage string }{
	{"number", "hospital patient number (MRN)"},
	{"first-name", "first name"},
	{"middle-name", "middle name"},
	{"last-name", "last name"},
	{"dob", "date of birth, YYYY-MM-DD"},
	{"gender", "male, female, other or unknown"},
	{"phone", "phone number"},
	{"email", "email address"},
	{"address", "postal address"},
	{"blood-group", "blood group, e.g. O+"},
	{"genotype", "genotype, e.g. AA"},
	{"branch", "branch id"},
	{"kin-name", "next of kin name"},
	{"kin-relationship", "next of kin relationship"},
	{"kin-phone", "next of kin phone"},
}

func bindPatientFlags(cmd *cobra.Command) *patientFields {
	pf := &patientFields{values: make(map[string]*string), fs: cmd.Flags()}
	for _, f := range patientFlagNames {
		pf.values[f.name] = cmd.Flags().String(f.name, "", f.usage)
	}
	return pf
}

// apply copies the flags that were set onto p.
func (pf *patientFields) apply(p *models.Patient) {
	set := func(name string, dst *string) {
		if pf.fs.Changed(name) {
			*dst = *pf.values[name]
		}
	}
	set("number", &p.PatientNumber)
	set("first-name", &p.FirstName)
	set("middle-name", &p.MiddleName)
	set("last-name", &p.LastName)
	set("dob", &p.DateOfBirth)
	set("gender", &p.Gender)
	set("phone", &p.Phone)
	set("email", &p.Email)
	set("address", &p.Address)
	set("blood-group", &p.BloodGroup)
	set("genotype", &p.Genotype)
	set("branch", &p.BranchID)

	if pf.fs.Changed("kin-name") || pf.fs.Changed("kin-relationship") || pf.fs.Changed("kin-phone") {
		if p.NextOfKin == nil {
			p.NextOfKin = &models.NextOfKin{}
		}
		set("kin-name", &p.NextOfKin.Name)
		set("kin-relationship", &p.NextOfKin.Relationship)
		set("kin-phone", &p.NextOfKin.Phone)
	}
}

func (a *App) patientCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Register, edit and look up patients in the local store",
	}
	cmd.AddCommand(
		a.patientRegisterCommand(),
		a.patientEditCommand(),
		a.patientGetCommand(),
		a.patientFindCommand(),
		a.patientSearchCommand(),
		a.patientDeleteCommand(),
		a.patientPendingCommand(),
	)
	return cmd
}

func (a *App) patientRegisterCommand() *cobra.Command {
	var (
		pf    *patientFields
		force bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new patient; the change is queued for sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := &models.Patient{}
			pf.apply(p)
			return a.withStore(ctx, func(s *store.Store) error {
				if !force {
					if err := checkDuplicatePatient(ctx, s, p); err != nil {
						return err
					}
				}
				id, err := s.Patients.Save(ctx, p)
				if err != nil {
					return err
				}
				a.printf("registered patient %s (%s)\n", id, p.SyncStatus)
				return nil
			})
		},
	}
	pf = bindPatientFlags(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "register even if the number, phone or email is already on file")
	return cmd
}

// checkDuplicatePatient refuses a registration whose patient number, phone
// or email already belongs to a stored patient.
func checkDuplicatePatient(ctx context.Context, s *store.Store, p *models.Patient) error {
	for _, f := range []struct{ name, value string }{
		{"patient number", p.PatientNumber},
		{"phone", p.Phone},
		{"email", p.Email},
	} {
		if f.value == "" {
			continue
		}
		existing, ok, err := s.Patients.FindByUniqueField(ctx, f.value)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("%w: %s %q is already registered to patient %s (use --force to register anyway)",
				common.ErrDuplicate, f.name, f.value, existing.ID)
		}
	}
	return nil
}

func (a *App) patientEditCommand() *cobra.Command {
	var pf *patientFields
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				p, err := getPatient(ctx, s, args[0])
				if err != nil {
					return err
				}
				pf.apply(p)
				if _, err := s.Patients.Save(ctx, p); err != nil {
					return err
				}
				a.printf("updated patient %s (%s)\n", p.ID, p.SyncStatus)
				return nil
			})
		},
	}
	pf = bindPatientFlags(cmd)
	return cmd
}

func getPatient(ctx context.Context, s *store.Store, id string) (*models.Patient, error) {
	p, ok, err := s.Patients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("patient[%s]: %w", id, common.ErrNotFound)
	}
	return p, nil
}

// patientView is the printed form of a patient, sync attributes included.
type patientView struct {
	*models.Patient
	SyncStatus      models.SyncStatus `json:"syncStatus"`
	LocalUpdatedAt  string            `json:"localUpdatedAt"`
	ServerUpdatedAt string            `json:"serverUpdatedAt,omitempty"`
}

func viewOf(p *models.Patient) patientView {
	v := patientView{Patient: p, SyncStatus: p.SyncStatus, LocalUpdatedAt: p.LocalUpdatedAt.Format(timeLayout)}
	if p.ServerUpdatedAt != nil {
		v.ServerUpdatedAt = p.ServerUpdatedAt.Format(timeLayout)
	}
	return v
}

func (a *App) patientGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				p, err := getPatient(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				return a.printJSON(viewOf(p))
			})
		},
	}
}

func (a *App) patientFindCommand() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "find <value>",
		Short: "Find a patient by patient number, phone or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withStore(ctx, func(s *store.Store) error {
				var (
					p   *models.Patient
					ok  bool
					err error
				)
				if field != "" {
					p, ok, err = s.Patients.FindBy(ctx, field, args[0])
				} else {
					p, ok, err = s.Patients.FindByUniqueField(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no patient matches %q: %w", args[0], common.ErrNotFound)
				}
				return a.printJSON(viewOf(p))
			})
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "only match this field (patientNumber, phone, email)")
	return cmd
}

func (a *App) patientSearchCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Case-insensitive search over names, number, phone and email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				list, err := s.Patients.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				a.printPatients(list)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of results")
	return cmd
}

func (a *App) patientDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient; the deletion is queued for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				if err := s.Patients.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				a.printf("deleted patient %s\n", args[0])
				return nil
			})
		},
	}
}

func (a *App) patientPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List patients with unsynced local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s *store.Store) error {
				list, err := s.Patients.ListPending(cmd.Context())
				if err != nil {
					return err
				}
				a.printPatients(list)
				return nil
			})
		},
	}
}

func (a *App) printPatients(list []*models.Patient) {
	if len(list) == 0 {
		a.printf("no patients\n")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tNAME\tPHONE\tSTATUS")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.PatientNumber, p.FullName(), p.Phone, p.SyncStatus)
	}
	_ = tw.Flush()
}
