package main

import (
	"fmt"
	"os"

	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/db/pebble"
	"github.com/antiyro/starkroot/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func DBSizeCmd() *cobra.Command {
	dbSizeCmd := &cobra.Command{
		Use:   "dbsize [flags]",
		Short: "Calculate database size information for each data type",
		Long: `This subcommand retrieves and displays the storage of each data type left
behind by a benchmark run on the pebble backend.`,
		RunE: dbSize,
	}
	dbSizeCmd.Flags().String(dbPathF, defaultDBPath, dbPathUsage)
	return dbSizeCmd
}

func dbSize(cmd *cobra.Command, _ []string) error {
	dbPath, err := cmd.Flags().GetString(dbPathF)
	if err != nil {
		return err
	}
	if dbPath == "" {
		return fmt.Errorf("--%v cannot be empty", dbPathF)
	}

	database, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	var (
		totalSize  utils.DataSize
		totalCount uint

		trieSize  utils.DataSize
		trieCount uint
		flatSize  utils.DataSize
		flatCount uint

		items [][]string
	)

	for _, b := range db.BucketValues() {
		bucketItem, err := pebble.CalculatePrefixSize(cmd.Context(), database.(*pebble.DB), []byte{byte(b)})
		if err != nil {
			return err
		}
		items = append(items, []string{b.String(), bucketItem.Size.String(), fmt.Sprintf("%d", bucketItem.Count)})

		totalSize += bucketItem.Size
		totalCount += bucketItem.Count

		if utils.AnyOf(b, db.StateTrie, db.ContractStorage, db.ClassesTrie) {
			trieSize += bucketItem.Size
			trieCount += bucketItem.Count
		} else {
			flatSize += bucketItem.Size
			flatCount += bucketItem.Count
		}
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Bucket", "Size", "Count"})
	table.AppendBulk(items)
	table.SetFooter([]string{"Total", totalSize.String(), fmt.Sprintf("%d", totalCount)})
	table.Render()

	groups := tablewriter.NewWriter(cmd.OutOrStdout())
	groups.SetHeader([]string{"Group", "Size", "Count"})
	groups.Append([]string{"Trie nodes", trieSize.String(), fmt.Sprintf("%d", trieCount)})
	groups.Append([]string{"Flat state", flatSize.String(), fmt.Sprintf("%d", flatCount)})
	groups.Render()

	return nil
}

func openDB(path string) (db.DB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database path does not exist")
	}

	database, err := pebble.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return database, nil
}
