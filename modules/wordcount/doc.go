// Package wordcount reports NaNoWriMo progress for tracked regions and single
// writers. It fetches records from the word-count API, parses them, ranks and
// renders them, and answers the `/wordcount`, `/donations`, and `/wordgoal`
// commands.
package wordcount
