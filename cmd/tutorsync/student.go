package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/devsusana/tutorsync/internal/entity"
)

var (
	studentAge     int
	studentPhone   string
	studentCourse  string
	studentPrice   float64
	studentSubject string
)

func init() {
	studentAddCmd.Flags().IntVar(&studentAge, "age", 0, "student age")
	studentAddCmd.Flags().StringVar(&studentPhone, "phone", "", "contact phone")
	studentAddCmd.Flags().StringVar(&studentCourse, "course", "", "course or level")
	studentAddCmd.Flags().Float64Var(&studentPrice, "price", 0, "price per hour")
	studentAddCmd.Flags().StringVar(&studentSubject, "subjects", "", "subjects taught")

	studentCmd.AddCommand(studentAddCmd, studentListCmd, studentRmCmd)
	rootCmd.AddCommand(studentCmd)
}

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Manage students",
}

var studentAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a student",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()

		st := &entity.Student{
			SyncFields:   entity.SyncFields{TenantID: cfg.TenantID},
			Name:         args[0],
			Age:          studentAge,
			Phone:        studentPhone,
			Course:       studentCourse,
			Subjects:     studentSubject,
			PricePerHour: studentPrice,
			Active:       true,
		}
		st.MarkModified()
		if err := store.UpsertStudent(context.Background(), st); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Added student %d: %s (queued for upload)\n", st.LocalID, st.Name)
	},
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()

		students, err := store.ListStudents(context.Background(), cfg.TenantID)
		if err != nil {
			fail("%v", err)
		}
		if len(students) == 0 {
			fmt.Println("No students.")
			return
		}
		for _, st := range students {
			marker := " "
			switch st.SyncStatus {
			case entity.StatusPendingUpload:
				marker = "↑"
			case entity.StatusError:
				marker = "!"
			}
			fmt.Printf("%4d %s %-24s %s\n", st.LocalID, marker, st.Name, st.Course)
		}
	},
}

var studentRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a student and everything linked to them",
	Long: `Soft-delete a student. The student disappears from listings
immediately; the next sync cycle erases their schedules, exceptions and
shared resources everywhere.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if cfg.TenantID == "" {
			fail("tenant.id is not configured")
		}
		store := openLocal(cfg)
		defer store.Close()
		ctx := context.Background()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fail("invalid student id %q", args[0])
		}
		st, err := store.StudentByID(ctx, cfg.TenantID, id)
		if err != nil {
			fail("%v", err)
		}
		if st == nil {
			fail("student %d not found", id)
		}
		if err := store.MarkStudentDeleted(ctx, cfg.TenantID, id); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted %s (erased everywhere on next sync)\n", st.Name)
	},
}
