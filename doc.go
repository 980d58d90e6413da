// Copyright 2026 bcycle-automations. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

/*
Package bcycle-automations is a set of one-shot automation commands that keep a fitness studio's
Airtable base in sync with the Mariana Tek scheduling platform.

bcycle-automations can be used from the command line but is really intended to be run from cron jobs
and webhook handlers to import class ratings, resolve booked classes against the studio schedule,
send reservation reminder emails and maintain customer check-in counts.

bcycle-automations supports the following commands:

  - import-ratings, to import class ratings from a CSV export into the feedback table
  - resolve-class, to resolve a booking record's room and wall-clock time to a scheduled class session
  - remind, to send reminder emails for tomorrow's reservations, catching up hour by hour
  - checkins, to aggregate recent check-ins per customer into the customers table
  - report, to generate a feedback summary spreadsheet from a Google Sheets template
*/
package automations
